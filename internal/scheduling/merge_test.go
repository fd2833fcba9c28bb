package scheduling

import (
	"reflect"
	"testing"
	"time"
)

func blockAt(day time.Time, startMin, endMin int, status SlotStatus) Block {
	return Block{
		Start:  day.Add(time.Duration(startMin) * time.Minute),
		End:    day.Add(time.Duration(endMin) * time.Minute),
		Status: status,
	}
}

func TestMergeBlocks_ContiguousFreeRuns(t *testing.T) {
	day := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	in := []Block{
		blockAt(day, 0, 30, SlotFree),
		blockAt(day, 30, 60, SlotFree),
		blockAt(day, 60, 90, SlotFree),
	}

	out := MergeBlocks(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 merged block, got %d", len(out))
	}
	want := blockAt(day, 0, 90, SlotFree)
	if !reflect.DeepEqual(out[0], want) {
		t.Fatalf("expected %+v, got %+v", want, out[0])
	}
}

func TestMergeBlocks_StatusBoundary(t *testing.T) {
	// The worked example: 09:00-10:00 published in 30 minute units, first
	// unit booked. The booked block must not merge into the free one.
	day := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	in := []Block{
		blockAt(day, 0, 30, SlotBooked),
		blockAt(day, 30, 60, SlotFree),
	}

	out := MergeBlocks(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(out))
	}
	if out[0].Status != SlotBooked || out[1].Status != SlotFree {
		t.Fatalf("statuses must survive the fold: %+v", out)
	}
}

func TestMergeBlocks_GapStaysSplit(t *testing.T) {
	day := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	in := []Block{
		blockAt(day, 0, 30, SlotFree),
		blockAt(day, 45, 75, SlotFree),
	}

	out := MergeBlocks(in)
	if len(out) != 2 {
		t.Fatalf("a gap must not merge, got %d blocks", len(out))
	}
}

func TestMergeBlocks_BusyNeverMerges(t *testing.T) {
	day := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	in := []Block{
		blockAt(day, 0, 30, SlotBusy),
		blockAt(day, 30, 60, SlotBusy),
		blockAt(day, 60, 90, SlotBooked),
		blockAt(day, 90, 120, SlotBooked),
	}

	out := MergeBlocks(in)
	if len(out) != 4 {
		t.Fatalf("only free runs merge, got %d blocks", len(out))
	}
}

func TestMergeBlocks_SortsInput(t *testing.T) {
	day := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	in := []Block{
		blockAt(day, 30, 60, SlotFree),
		blockAt(day, 0, 30, SlotFree),
	}

	out := MergeBlocks(in)
	if len(out) != 1 {
		t.Fatalf("out-of-order contiguous free blocks must merge, got %d", len(out))
	}
	if !out[0].Start.Equal(day) || !out[0].End.Equal(day.Add(time.Hour)) {
		t.Fatalf("unexpected merged bounds: %+v", out[0])
	}
}

func TestMergeBlocks_Idempotent(t *testing.T) {
	day := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	in := []Block{
		blockAt(day, 0, 30, SlotFree),
		blockAt(day, 30, 60, SlotFree),
		blockAt(day, 60, 90, SlotBooked),
		blockAt(day, 120, 150, SlotFree),
	}

	once := MergeBlocks(in)
	twice := MergeBlocks(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge must be idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMergeBlocks_Empty(t *testing.T) {
	if out := MergeBlocks(nil); len(out) != 0 {
		t.Fatalf("empty input must yield empty output, got %+v", out)
	}
}
