package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type fakeLister struct {
	ids []int
	err error
}

func (f *fakeLister) ListActiveProgramUsers(_ context.Context) ([]int, error) {
	return f.ids, f.err
}

// TestRunOnce verifies that every active user is adapted exactly once.
func TestRunOnce(t *testing.T) {
	var seen []int
	s := New(&fakeLister{ids: []int{1, 2, 3}}, func(_ context.Context, uid int) error {
		seen = append(seen, uid)
		return nil
	}, slog.Default())

	adapted, failed := s.RunOnce(context.Background())
	if adapted != 3 || failed != 0 {
		t.Errorf("adapted = %d, failed = %d, want 3 and 0", adapted, failed)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("seen = %v, want [1 2 3]", seen)
	}
}

// TestRunOnceContinuesAfterFailure verifies one failing user does not stop
// the sweep.
func TestRunOnceContinuesAfterFailure(t *testing.T) {
	s := New(&fakeLister{ids: []int{1, 2, 3}}, func(_ context.Context, uid int) error {
		if uid == 2 {
			return errors.New("no feedback yet")
		}
		return nil
	}, slog.Default())

	adapted, failed := s.RunOnce(context.Background())
	if adapted != 2 {
		t.Errorf("adapted = %d, want 2", adapted)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

// TestRunOnceListError verifies a listing failure adapts nobody.
func TestRunOnceListError(t *testing.T) {
	called := false
	s := New(&fakeLister{err: errors.New("db down")}, func(_ context.Context, _ int) error {
		called = true
		return nil
	}, slog.Default())

	adapted, failed := s.RunOnce(context.Background())
	if adapted != 0 || failed != 0 {
		t.Errorf("adapted = %d, failed = %d, want 0 and 0", adapted, failed)
	}
	if called {
		t.Error("adaptOne called despite listing failure")
	}
}

// TestStartInvalidSpec verifies a bad cron spec is rejected.
func TestStartInvalidSpec(t *testing.T) {
	s := New(&fakeLister{}, func(_ context.Context, _ int) error { return nil }, slog.Default())
	defer s.Stop()
	if err := s.Start("not a cron spec"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
