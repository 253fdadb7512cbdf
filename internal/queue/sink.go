package queue

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
)

// MultiSink fans an event out to every sink. All sinks are attempted even
// when an earlier one fails.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, e domain.Event) error {
	var combined error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			combined = errors.CombineErrors(combined, err)
		}
	}
	return combined
}

type DiscardSink struct{}

func (DiscardSink) Emit(context.Context, domain.Event) error { return nil }
