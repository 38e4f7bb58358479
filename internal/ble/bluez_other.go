//go:build !linux

package ble

import (
	"context"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
)

// BlueZ is unavailable on this platform; every operation fails.
type BlueZ struct {
	id string
}

// NewBlueZ returns an adapter whose Run fails with ErrUnsupportedPlatform.
func NewBlueZ(cfg config.BluetoothConfig) *BlueZ {
	return &BlueZ{id: cfg.Adapter}
}

// SetLogger is a no-op on this platform.
func (b *BlueZ) SetLogger(Logger) {}

func (b *BlueZ) Run(context.Context, chan<- Event) error { return ErrUnsupportedPlatform }
func (b *BlueZ) StartScanning() error                    { return ErrUnsupportedPlatform }
func (b *BlueZ) StopScanning() error                     { return nil }

func (b *BlueZ) Connect(context.Context, Peripheral) (Connection, error) {
	return nil, ErrUnsupportedPlatform
}
