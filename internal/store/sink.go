package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/aiguard/internal/logging"
	"github.com/roach88/aiguard/internal/pipeline"
)

// Sink is a pipeline.Observer that appends every result to the store.
// Write failures are logged and never reach the caller of Validate.
type Sink struct {
	store *Store
	log   *logging.Logger
}

// NewSink returns a Sink writing to s. A nil log discards write errors.
func NewSink(s *Store, log *logging.Logger) *Sink {
	if log == nil {
		log = logging.NewNop()
	}
	return &Sink{store: s, log: log.Named("store")}
}

// Observe implements pipeline.Observer.
func (k *Sink) Observe(ctx context.Context, res pipeline.Result) {
	if err := k.store.WriteResult(ctx, res); err != nil {
		k.log.Error(ctx, "failed to store result",
			zap.String("run_id", res.RunID),
			zap.String("contract", res.ContractID),
			zap.Error(err),
		)
	}
}
