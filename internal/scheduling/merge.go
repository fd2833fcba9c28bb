package scheduling

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// MergeBlocks collapses contiguous free blocks into one for display. Blocks
// merge only when both are free and the first ends exactly where the second
// starts; booked and busy blocks never merge with neighbours. The fold is
// pure and deterministic: input order breaks start-time ties via the stable
// sort, and merging an already-merged sequence is a no-op.
func MergeBlocks(blocks []Block) []Block {
	if len(blocks) == 0 {
		return nil
	}

	sorted := make([]Block, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]Block, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if current.Status == SlotFree && next.Status == SlotFree && current.End.Equal(next.Start) {
			current.End = next.End
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}

// ListMergedSchedule returns the practitioner's slots as merged display
// blocks, ordered by start time.
func (s *Service) ListMergedSchedule(ctx context.Context, practitionerID uuid.UUID) ([]Block, error) {
	slots, err := s.repo.ListSlotsByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	blocks := make([]Block, 0, len(slots))
	for _, slot := range slots {
		blocks = append(blocks, Block{Start: slot.Start, End: slot.End, Status: slot.Status})
	}
	return MergeBlocks(blocks), nil
}
