package store

import (
	"context"
	"fmt"

	"github.com/roach88/execgraph/internal/trace"
)

// Replay re-emits the stored events of a run, in seq order, on dst.
// Subscribers of dst see the same sequence the original run produced.
// Returns the number of events emitted.
func (s *Store) Replay(ctx context.Context, runID string, dst *trace.Emitter) (int, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return 0, fmt.Errorf("replay %s: %w", runID, err)
	}
	records, err := s.ReadRunEvents(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("replay %s: %w", runID, err)
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		dst.Emit(rec.Event)
	}
	return len(records), nil
}
