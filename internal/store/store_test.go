package store

import (
	"fmt"
	"testing"
)

func TestPublishLatestCopies(t *testing.T) {
	s := New(16)
	s.Publish(Snapshot{
		Status:    "RUNNING",
		Tick:      42,
		Positions: map[string]int{"WNTR": 900},
		Net:       900,
		Gross:     900,
	})

	got := s.Latest()
	if got.Tick != 42 || got.Status != "RUNNING" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Publish must stamp UpdatedAt")
	}

	// 读者改写自己的副本，不得影响后续读者
	got.Positions["WNTR"] = -1
	if s.Latest().Positions["WNTR"] != 900 {
		t.Error("Latest must deep-copy maps")
	}
}

func TestAppendDrain(t *testing.T) {
	s := New(16)
	s.Append("open", "[OPEN] BUY 7200 WNTR @ 99.99")
	s.Append("trim", "[TRIM] gross: 100 | net: 100")

	logs := s.DrainLogs(10)
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].Category != "open" || logs[1].Category != "trim" {
		t.Errorf("entries out of order: %+v", logs)
	}

	if rest := s.DrainLogs(10); len(rest) != 0 {
		t.Errorf("drain must consume entries, got %d more", len(rest))
	}
}

func TestAppendDropsOldestWhenFull(t *testing.T) {
	s := New(4)
	for i := 0; i < 10; i++ {
		s.Append("info", fmt.Sprintf("line %d", i))
	}

	logs := s.DrainLogs(10)
	if len(logs) != 4 {
		t.Fatalf("expected buffer cap 4, got %d", len(logs))
	}
	if logs[len(logs)-1].Message != "line 9" {
		t.Errorf("newest entry must survive, got %q", logs[len(logs)-1].Message)
	}
}

func TestDrainHonorsMax(t *testing.T) {
	s := New(16)
	for i := 0; i < 8; i++ {
		s.Append("info", "x")
	}
	if got := s.DrainLogs(3); len(got) != 3 {
		t.Errorf("expected 3 entries, got %d", len(got))
	}
}
