package device

import (
	"context"
	"fmt"
)

// HistoryBinding records every device hand-off in a Repository.
type HistoryBinding struct {
	repo Repository
}

// NewHistoryBinding creates a binding backed by repo.
func NewHistoryBinding(repo Repository) *HistoryBinding {
	return &HistoryBinding{repo: repo}
}

// Name identifies the binding in logs.
func (h *HistoryBinding) Name() string {
	return "history"
}

// Bind stores the sighting for dev.
func (h *HistoryBinding) Bind(ctx context.Context, dev Device) error {
	if err := h.repo.RecordConnect(ctx, dev); err != nil {
		return fmt.Errorf("history for %s: %w", dev.ID, err)
	}
	return nil
}
