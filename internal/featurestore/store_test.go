package featurestore

import (
	"math"
	"testing"
)

func TestWindowDenseIsAlwaysLengthN(t *testing.T) {
	w := NewWindow(5)
	if got := w.Dense(); len(got) != 5 {
		t.Fatalf("empty window: len=%d, want 5", len(got))
	}

	w.Push(1)
	w.Push(2)
	got := w.Dense()
	if len(got) != 5 {
		t.Fatalf("len=%d, want 5", len(got))
	}
	// Left-padded with the first sample, not zero.
	want := []float64{1, 1, 1, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Dense()=%v, want %v", got, want)
		}
	}

	for i := 0; i < 10; i++ {
		w.Push(float64(i))
	}
	if got := w.Dense(); len(got) != 5 {
		t.Fatalf("after overflow: len=%d, want 5", len(got))
	}
}

func TestWindowAcceptsNaN(t *testing.T) {
	w := NewWindow(3)
	w.Push(math.NaN())
	got := w.Dense()
	if len(got) != 3 {
		t.Fatalf("len=%d, want 3", len(got))
	}
	if !math.IsNaN(got[2]) {
		t.Fatalf("expected NaN at tail, got %v", got[2])
	}
}

func TestStorePushCreatesLazily(t *testing.T) {
	s := New(4)
	if got := s.Window("r1", "temp_c"); len(got) != 4 {
		t.Fatalf("unseen window len=%d, want 4", len(got))
	}
	s.Push("r1", "temp_c", 22.5)
	got := s.Window("r1", "temp_c")
	if got[3] != 22.5 {
		t.Fatalf("got[3]=%v, want 22.5", got[3])
	}
}

func TestStoreSnapshot(t *testing.T) {
	s := New(4)
	s.Push("r1", "temp_c", 22.5)
	s.Push("r1", "hum_pct", 40)
	snap := s.Snapshot("r1")
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d metrics, want 2", len(snap))
	}
}
