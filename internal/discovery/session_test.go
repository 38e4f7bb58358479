package discovery

import (
	"strings"
	"testing"
	"time"
)

func TestNewScanTarget(t *testing.T) {
	tests := []struct {
		name      string
		ids       []string
		expected  int
		timeout   time.Duration
		wantKind  TargetKind
		wantCount int
	}{
		{"explicit overrides count", []string{"RISE1", "RISE2"}, 5, time.Minute, TargetExplicit, 2},
		{"explicit dedupes", []string{"RISE1", "RISE1"}, 0, time.Minute, TargetExplicit, 1},
		{"count", nil, 3, time.Minute, TargetCount, 3},
		{"timeout", nil, 0, time.Minute, TargetTimeout, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := NewScanTarget(NewIDSet(tt.ids), tt.expected, tt.timeout)
			if target.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", target.Kind, tt.wantKind)
			}
			if target.Count != tt.wantCount {
				t.Errorf("Count = %d, want %d", target.Count, tt.wantCount)
			}
			if target.Kind == TargetExplicit && target.Timeout != 0 {
				t.Error("explicit target carries a timeout")
			}
		})
	}
}

func TestScanTarget_Describe(t *testing.T) {
	explicit := NewScanTarget(NewIDSet([]string{"RISE1"}), 0, 0)
	if got := explicit.Describe(); !strings.Contains(got, "1 device(s) [RISE1]") {
		t.Errorf("Describe() = %q", got)
	}
	timeout := NewScanTarget(NewIDSet(nil), 0, 30*time.Second)
	if got := timeout.Describe(); !strings.Contains(got, "30s") {
		t.Errorf("Describe() = %q", got)
	}
}

func TestSession_TimeoutMode(t *testing.T) {
	s := NewSession(NewScanTarget(NewIDSet(nil), 0, 30*time.Second))

	if s.Expire() {
		t.Error("Expire() from Idle stopped the session")
	}

	arm, started, rescan := s.Begin()
	if !started || rescan || arm != 30*time.Second {
		t.Fatalf("Begin() = (%v, %v, %v)", arm, started, rescan)
	}

	// Timeout mode ignores registry size.
	if s.Registered(100) {
		t.Error("Registered() stopped a timeout session")
	}

	arm, started, rescan = s.Begin()
	if started || !rescan || arm != 0 {
		t.Errorf("second Begin() = (%v, %v, %v), want rescan without timer", arm, started, rescan)
	}

	if !s.Expire() {
		t.Fatal("Expire() did not stop the session")
	}
	if s.State() != StateStopped || s.Accepting() {
		t.Errorf("State() = %v after expiry", s.State())
	}

	if _, started, rescan := s.Begin(); started || rescan {
		t.Error("Begin() after stop had an effect")
	}
	if s.Expire() {
		t.Error("Expire() stopped twice")
	}

	st := s.Status(0)
	if st.StopReason != string(StopTimeout) || st.StartedAt == nil || st.StoppedAt == nil {
		t.Errorf("Status() = %+v", st)
	}
}

func TestSession_CountMode(t *testing.T) {
	s := NewSession(NewScanTarget(NewIDSet(nil), 2, time.Minute))

	arm, started, _ := s.Begin()
	if !started || arm != 0 {
		t.Fatalf("Begin() = (%v, %v), want started without timer", arm, started)
	}
	if s.ConnectOnRegister() {
		t.Error("count mode connects on register")
	}
	if s.Registered(1) {
		t.Error("stopped below count")
	}
	if !s.Registered(2) {
		t.Fatal("did not stop at count")
	}
	if s.Registered(3) {
		t.Error("stopped twice")
	}
	if s.Expire() {
		t.Error("count session expired")
	}
}

func TestSession_ExplicitMode(t *testing.T) {
	s := NewSession(NewScanTarget(NewIDSet([]string{"RISE1", "RISE2"}), 0, time.Minute))

	if !s.ConnectOnRegister() {
		t.Error("explicit mode does not connect on register")
	}
	// Registrations may arrive before the adapter is ready.
	if s.Registered(1) {
		t.Error("stopped below count")
	}
	if !s.Registered(2) {
		t.Fatal("did not stop when every id was found")
	}
	if _, started, rescan := s.Begin(); started || rescan {
		t.Error("Begin() after stop had an effect")
	}
}

func TestSession_Cancel(t *testing.T) {
	s := NewSession(NewScanTarget(NewIDSet(nil), 0, time.Minute))
	s.Begin()
	s.Cancel()
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if st := s.Status(0); st.StopReason != string(StopCanceled) {
		t.Errorf("StopReason = %q", st.StopReason)
	}
}
