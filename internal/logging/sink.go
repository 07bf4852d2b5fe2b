package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/aiguard/internal/pipeline"
)

// Sink is a pipeline.Observer that writes one entry per result.
type Sink struct {
	log *Logger
}

// NewSink returns a Sink writing to log.
func NewSink(log *Logger) *Sink {
	return &Sink{log: log.Named("pipeline")}
}

// Observe implements pipeline.Observer.
func (s *Sink) Observe(ctx context.Context, res pipeline.Result) {
	outcome := res.Trace.Outcome()
	level := levelFor(outcome)
	if !s.log.Enabled(level) {
		return
	}

	fields := []zap.Field{
		zap.String("contract", res.ContractID),
		zap.String("run_id", res.RunID),
		zap.String("strictness", string(res.Trace.Strictness)),
		zap.String("outcome", string(outcome)),
		zap.Strings("repaired", res.Trace.Repaired),
		zap.Strings("defaulted", res.Trace.Defaulted),
		zap.Int("violations", len(res.Trace.Violations)),
	}
	if res.Trace.RecordDefault {
		fields = append(fields, zap.String("reason", string(res.Trace.RecordDefaultReason)))
	}
	if res.Trace.ParseError != "" {
		fields = append(fields, zap.String("parse_error", res.Trace.ParseError))
	}
	if len(res.Trace.Dropped) > 0 {
		fields = append(fields, zap.Strings("dropped", res.Trace.Dropped))
	}
	s.log.Log(ctx, level, "validation complete", fields...)
}

func levelFor(o pipeline.Outcome) zapcore.Level {
	switch o {
	case pipeline.OutcomeClean:
		return zapcore.DebugLevel
	case pipeline.OutcomeRepaired:
		return zapcore.InfoLevel
	default:
		return zapcore.WarnLevel
	}
}
