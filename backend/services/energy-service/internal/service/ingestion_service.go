package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/models"
	"gridcast/backend/services/energy-service/internal/partition"
	"gridcast/backend/services/energy-service/internal/publisher"
	"gridcast/backend/services/energy-service/internal/repository"
	"gridcast/backend/services/energy-service/internal/source"
)

// Sink names used in Outcome.SinkErrors and metrics.
const (
	SinkLog       = "log"
	SinkStaging   = "staging"
	SinkPublisher = "publisher"
)

// OutcomeStatus classifies one acquisition tick.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome reports what one tick did. A produced reading whose sinks partly failed is
// OutcomeFailed with Reading set and SinkErrors naming each failed sink.
type Outcome struct {
	Status     OutcomeStatus
	Reading    *models.Reading
	Reason     string
	Err        error
	SinkErrors map[string]error
}

// Error joins the source error and every sink error.
func (o Outcome) Error() error {
	errs := []error{o.Err}
	names := make([]string, 0, len(o.SinkErrors))
	for name := range o.SinkErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		errs = append(errs, fmt.Errorf("%s: %w", name, o.SinkErrors[name]))
	}
	return errors.Join(errs...)
}

// ReadingLog is the durable append log.
type ReadingLog interface {
	EnsurePartition(key partition.Key, station string) (bool, error)
	Append(reading models.Reading) error
}

// StagingWriter is the write side of the staging store.
type StagingWriter interface {
	EnsurePartition(ctx context.Context, key partition.Key) (bool, error)
	Insert(ctx context.Context, reading models.Reading) error
}

// TickRecorder receives per-tick counters.
type TickRecorder interface {
	Tick(outcome string)
	SinkFailure(sink string)
}

// IngestionService runs the acquisition loop.
type IngestionService struct {
	source    source.Source
	log       ReadingLog
	staging   StagingWriter
	publisher publisher.Publisher
	metrics   TickRecorder
	logger    *zap.Logger

	nextSeq int64
	ensured map[string]partition.Key

	retryMin time.Duration
	retryMax time.Duration
}

// Retry delays after a tick whose source read failed.
const (
	DefaultRetryMin = 100 * time.Millisecond
	DefaultRetryMax = 30 * time.Second
)

// IngestionOption customizes an IngestionService.
type IngestionOption func(*IngestionService)

// WithRetryBackoff sets the first and the largest delay Run waits after consecutive
// source failures.
func WithRetryBackoff(first, limit time.Duration) IngestionOption {
	return func(s *IngestionService) {
		if first > 0 {
			s.retryMin = first
		}
		if limit >= s.retryMin {
			s.retryMax = limit
		}
	}
}

// NewIngestionService wires the sinks. pub and metrics may be nil.
func NewIngestionService(src source.Source, log ReadingLog, staging StagingWriter, pub publisher.Publisher, metrics TickRecorder, logger *zap.Logger, opts ...IngestionOption) *IngestionService {
	s := &IngestionService{
		source:    src,
		log:       log,
		staging:   staging,
		publisher: pub,
		metrics:   metrics,
		logger:    logger,
		nextSeq:   1,
		ensured:   make(map[string]partition.Key),
		retryMin:  DefaultRetryMin,
		retryMax:  DefaultRetryMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextSequence is the id the next produced reading will get.
func (s *IngestionService) NextSequence() int64 {
	return s.nextSeq
}

// Tick performs one acquisition step.
func (s *IngestionService) Tick(ctx context.Context) Outcome {
	res, err := s.source.Next(ctx, s.nextSeq)
	if err != nil {
		return s.finish(Outcome{Status: OutcomeFailed, Err: fmt.Errorf("ingestion: read source: %w", err)})
	}
	if res.Status == source.StatusSkipped {
		return s.finish(Outcome{Status: OutcomeSkipped, Reason: res.Reason})
	}

	reading := res.Reading
	s.nextSeq++

	out := Outcome{Status: OutcomeSuccess, Reading: &reading, SinkErrors: map[string]error{}}
	key := partition.For(reading.Timestamp)

	if err := s.ensureLog(key, reading.StationID); err != nil {
		out.SinkErrors[SinkLog] = err
	} else if err := s.log.Append(reading); err != nil {
		out.SinkErrors[SinkLog] = err
	}

	if err := s.ensureStaging(ctx, key); err != nil {
		out.SinkErrors[SinkStaging] = err
	} else if err := s.staging.Insert(ctx, reading); err != nil {
		out.SinkErrors[SinkStaging] = err
		if errors.Is(err, repository.ErrPartitionMissing) {
			delete(s.ensured, SinkStaging)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, reading); err != nil {
			out.SinkErrors[SinkPublisher] = err
		}
	}

	if len(out.SinkErrors) > 0 {
		out.Status = OutcomeFailed
	}
	return s.finish(out)
}

// Run loops Tick until ctx is cancelled. Tick failures are logged and never stop the loop.
// After a failed source read Run waits before the next tick, doubling the delay up to
// the configured maximum; any tick that reaches the source resets it.
func (s *IngestionService) Run(ctx context.Context) error {
	s.logger.Info("acquisition loop started", zap.Int64("next_sequence", s.nextSeq))
	var delay time.Duration
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("acquisition loop stopped", zap.Int64("next_sequence", s.nextSeq))
			return err
		}
		out := s.Tick(ctx)
		if ctx.Err() != nil && out.Status == OutcomeFailed && out.Reading == nil {
			continue
		}
		s.report(out)

		if out.Status != OutcomeFailed || out.Reading != nil {
			delay = 0
			continue
		}
		delay = s.nextDelay(delay)
		s.logger.Debug("source unavailable, backing off", zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *IngestionService) nextDelay(prev time.Duration) time.Duration {
	if prev <= 0 {
		return s.retryMin
	}
	if next := prev * 2; next < s.retryMax {
		return next
	}
	return s.retryMax
}

// PrepareNext creates the partitions for the day after now so the midnight rollover
// does not pay the CREATE TABLE on the first tick.
func (s *IngestionService) PrepareNext(ctx context.Context, key partition.Key, station string) error {
	next, err := key.Next()
	if err != nil {
		return err
	}
	var errs []error
	if _, err := s.log.EnsurePartition(next, station); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", SinkLog, err))
	}
	if _, err := s.staging.EnsurePartition(ctx, next); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", SinkStaging, err))
	}
	if len(errs) == 0 {
		s.logger.Info("next partition prepared", zap.String("partition", next.String()))
	}
	return errors.Join(errs...)
}

func (s *IngestionService) ensureLog(key partition.Key, station string) error {
	cacheKey := SinkLog + "/" + station
	if s.ensured[cacheKey] == key {
		return nil
	}
	created, err := s.log.EnsurePartition(key, station)
	if err != nil {
		return err
	}
	s.ensured[cacheKey] = key
	if created {
		s.logger.Info("append log partition created", zap.String("partition", key.String()), zap.String("station", station))
	}
	return nil
}

func (s *IngestionService) ensureStaging(ctx context.Context, key partition.Key) error {
	if s.ensured[SinkStaging] == key {
		return nil
	}
	created, err := s.staging.EnsurePartition(ctx, key)
	if err != nil {
		return err
	}
	s.ensured[SinkStaging] = key
	if created {
		s.logger.Info("staging partition created", zap.String("table", key.Table()))
	}
	return nil
}

func (s *IngestionService) finish(out Outcome) Outcome {
	if s.metrics != nil {
		s.metrics.Tick(string(out.Status))
		for name := range out.SinkErrors {
			s.metrics.SinkFailure(name)
		}
	}
	return out
}

func (s *IngestionService) report(out Outcome) {
	switch out.Status {
	case OutcomeSuccess:
		s.logger.Debug("reading stored", zap.Int64("sequence", out.Reading.SequenceID), zap.String("station", out.Reading.StationID))
	case OutcomeSkipped:
		s.logger.Debug("tick skipped", zap.String("reason", out.Reason))
	case OutcomeFailed:
		fields := []zap.Field{zap.Error(out.Error())}
		if out.Reading != nil {
			fields = append(fields, zap.Int64("sequence", out.Reading.SequenceID))
		}
		s.logger.Warn("acquisition tick failed", fields...)
	}
}
