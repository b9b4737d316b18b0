package task

import (
	"errors"
	"testing"
	"time"
)

func TestMemStorePutAndGet(t *testing.T) {
	t.Parallel()

	s := NewMemStore(
		Task{ID: "t1", Description: "予算感を確認", Priority: PriorityHigh},
		Task{ID: "t2", Description: "日程を調整", Priority: PriorityMedium},
	)

	got, err := s.Get("t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Description != "予算感を確認" {
		t.Fatalf("unexpected task: %+v", got)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemStoreListOpenOrdered(t *testing.T) {
	t.Parallel()

	s := NewMemStore(
		Task{ID: "b"},
		Task{ID: "a"},
		Task{ID: "c", Completed: true},
	)

	open := s.ListOpen()
	if len(open) != 2 {
		t.Fatalf("want 2 open tasks, got %d", len(open))
	}
	if open[0].ID != "a" || open[1].ID != "b" {
		t.Fatalf("want [a b], got [%s %s]", open[0].ID, open[1].ID)
	}
}

func TestMemStoreMarkCompleted(t *testing.T) {
	t.Parallel()

	s := NewMemStore(Task{ID: "t1"})
	now := time.Now()

	if err := s.MarkCompleted("t1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := s.Get("t1")
	if !got.Completed || !got.CompletedAt.Equal(now) {
		t.Fatalf("task not completed: %+v", got)
	}

	// Marking again is a no-op and keeps the original timestamp.
	if err := s.MarkCompleted("t1", now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = s.Get("t1")
	if !got.CompletedAt.Equal(now) {
		t.Fatalf("CompletedAt changed on repeat mark: %v", got.CompletedAt)
	}

	if err := s.MarkCompleted("missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemStoreCompletionMonotonic(t *testing.T) {
	t.Parallel()

	s := NewMemStore(Task{ID: "t1"})
	_ = s.MarkCompleted("t1", time.Now())

	// Re-putting an open copy must not revert the completion.
	s.Put(Task{ID: "t1"})
	got, _ := s.Get("t1")
	if !got.Completed {
		t.Fatal("completion reverted by Put")
	}
}
