package cleanup

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) DeleteLogsBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestNewServiceDisabled(t *testing.T) {
	if s := NewService(&fakePruner{}, 0, time.Hour); s != nil {
		t.Error("NewService(retention 0) should return nil")
	}
	if s := NewService(nil, 30, time.Hour); s != nil {
		t.Error("NewService(nil store) should return nil")
	}

	// nil service is safe to use
	var s *Service
	s.StartBackgroundCleanup()
	s.StopBackgroundCleanup()
	if n := s.RunCleanupCycle(); n != 0 {
		t.Errorf("nil RunCleanupCycle() = %d", n)
	}
}

func TestRunCleanupCycleCutoff(t *testing.T) {
	p := &fakePruner{}
	s := NewService(p, 90, time.Hour)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if n := s.RunCleanupCycle(); n != 3 {
		t.Errorf("RunCleanupCycle() = %d, want 3", n)
	}
	want := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	if !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoffs[0], want)
	}

	p.err = errors.New("db locked")
	if n := s.RunCleanupCycle(); n != 0 {
		t.Errorf("RunCleanupCycle() on error = %d, want 0", n)
	}
}

func TestBackgroundCleanup(t *testing.T) {
	p := &fakePruner{}
	s := NewService(p, 7, 10*time.Millisecond)
	s.StartBackgroundCleanup()

	deadline := time.Now().Add(2 * time.Second)
	for p.calls() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("background cleanup did not run periodically")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.StopBackgroundCleanup()
	s.StopBackgroundCleanup()
	after := p.calls()
	time.Sleep(30 * time.Millisecond)
	if p.calls() != after {
		t.Error("cleanup kept running after stop")
	}
}
