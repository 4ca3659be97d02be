package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/appendlog"
	"gridcast/backend/services/energy-service/internal/partition"
	"gridcast/backend/services/energy-service/internal/repository"
	"gridcast/backend/services/energy-service/internal/source"
)

var morning = time.Date(2024, 3, 10, 9, 30, 0, 0, time.Local)

func TestTickStoresReadingInEverySink(t *testing.T) {
	src := &scriptedSource{steps: []step{produced(morning)}}
	log, staging, pub, rec := &fakeLog{}, &fakeStaging{}, &fakePublisher{}, newRecorder()
	svc := NewIngestionService(src, log, staging, pub, rec, zap.NewNop())

	out := svc.Tick(context.Background())

	require.Equal(t, OutcomeSuccess, out.Status)
	require.NotNil(t, out.Reading)
	assert.Equal(t, int64(1), out.Reading.SequenceID)
	assert.Empty(t, out.SinkErrors)
	assert.NoError(t, out.Error())
	require.Len(t, log.appended, 1)
	require.Len(t, staging.inserted, 1)
	require.Len(t, pub.published, 1)
	assert.Equal(t, []partition.Key{"10_03_24"}, staging.ensured)
	assert.Equal(t, int64(2), svc.NextSequence())
	assert.Equal(t, 1, rec.ticks["success"])
}

func TestTickSkippedDoesNotAdvanceSequence(t *testing.T) {
	src := &scriptedSource{steps: []step{{result: source.Skipped("field count")}, produced(morning)}}
	log, staging := &fakeLog{}, &fakeStaging{}
	svc := NewIngestionService(src, log, staging, nil, nil, zap.NewNop())

	out := svc.Tick(context.Background())
	assert.Equal(t, OutcomeSkipped, out.Status)
	assert.Equal(t, "field count", out.Reason)
	assert.Nil(t, out.Reading)
	assert.Empty(t, log.appended)
	assert.Empty(t, staging.inserted)

	out = svc.Tick(context.Background())
	require.Equal(t, OutcomeSuccess, out.Status)
	assert.Equal(t, int64(1), out.Reading.SequenceID)
	assert.Equal(t, []int64{1, 1}, src.seqs)
}

func TestTickSourceErrorIsFailure(t *testing.T) {
	boom := errors.New("port unplugged")
	src := &scriptedSource{steps: []step{{err: boom}}}
	rec := newRecorder()
	svc := NewIngestionService(src, &fakeLog{}, &fakeStaging{}, nil, rec, zap.NewNop())

	out := svc.Tick(context.Background())
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.ErrorIs(t, out.Error(), boom)
	assert.Nil(t, out.Reading)
	assert.Equal(t, int64(1), svc.NextSequence())
	assert.Equal(t, 1, rec.ticks["failed"])
}

func TestTickSinksFailIndependently(t *testing.T) {
	dbDown := errors.New("connection refused")
	src := &scriptedSource{steps: []step{produced(morning)}}
	log, staging, pub, rec := &fakeLog{}, &fakeStaging{insertErr: dbDown}, &fakePublisher{}, newRecorder()
	svc := NewIngestionService(src, log, staging, pub, rec, zap.NewNop())

	out := svc.Tick(context.Background())

	assert.Equal(t, OutcomeFailed, out.Status)
	require.NotNil(t, out.Reading)
	assert.ErrorIs(t, out.SinkErrors[SinkStaging], dbDown)
	assert.NotContains(t, out.SinkErrors, SinkLog)
	assert.Len(t, log.appended, 1)
	assert.Len(t, pub.published, 1)
	assert.Equal(t, int64(2), svc.NextSequence())
	assert.Equal(t, 1, rec.sinks[SinkStaging])
}

func TestTickLogFailureStillInserts(t *testing.T) {
	diskFull := errors.New("no space left on device")
	src := &scriptedSource{steps: []step{produced(morning)}}
	staging, pub := &fakeStaging{}, &fakePublisher{err: errors.New("broker down")}
	svc := NewIngestionService(src, &fakeLog{appendErr: diskFull}, staging, pub, nil, zap.NewNop())

	out := svc.Tick(context.Background())

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.ErrorIs(t, out.SinkErrors[SinkLog], diskFull)
	assert.Contains(t, out.SinkErrors, SinkPublisher)
	assert.Len(t, staging.inserted, 1)
	assert.ErrorIs(t, out.Error(), diskFull)
}

func TestTickEnsuresPartitionOncePerDay(t *testing.T) {
	src := &scriptedSource{steps: []step{
		produced(morning),
		produced(morning.Add(time.Minute)),
		produced(morning.Add(2 * time.Minute)),
	}}
	log, staging := &fakeLog{}, &fakeStaging{}
	svc := NewIngestionService(src, log, staging, nil, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.Equal(t, OutcomeSuccess, svc.Tick(context.Background()).Status)
	}
	assert.Len(t, staging.ensured, 1)
	assert.Len(t, log.ensured, 1)
	assert.Len(t, staging.inserted, 3)
}

func TestTickRetriesPartitionAfterEnsureFailure(t *testing.T) {
	src := &scriptedSource{steps: []step{produced(morning), produced(morning.Add(time.Minute))}}
	staging := &fakeStaging{ensureErr: errors.New("permission denied")}
	svc := NewIngestionService(src, &fakeLog{}, staging, nil, nil, zap.NewNop())

	out := svc.Tick(context.Background())
	assert.Contains(t, out.SinkErrors, SinkStaging)
	assert.Empty(t, staging.inserted)

	staging.ensureErr = nil
	out = svc.Tick(context.Background())
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.Len(t, staging.inserted, 1)
}

func TestTickRecreatesDroppedPartition(t *testing.T) {
	src := &scriptedSource{steps: []step{
		produced(morning),
		produced(morning.Add(time.Minute)),
		produced(morning.Add(2 * time.Minute)),
	}}
	staging := &fakeStaging{}
	svc := NewIngestionService(src, &fakeLog{}, staging, nil, nil, zap.NewNop())

	require.Equal(t, OutcomeSuccess, svc.Tick(context.Background()).Status)
	require.Len(t, staging.ensured, 1)

	staging.insertErr = fmt.Errorf("%w: temp_data_table_10_03_24", repository.ErrPartitionMissing)
	out := svc.Tick(context.Background())
	assert.ErrorIs(t, out.SinkErrors[SinkStaging], repository.ErrPartitionMissing)

	staging.insertErr = nil
	out = svc.Tick(context.Background())
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.Len(t, staging.ensured, 2)
	assert.Len(t, staging.inserted, 2)
}

func TestTickKeepsPartitionOnOtherInsertErrors(t *testing.T) {
	src := &scriptedSource{steps: []step{produced(morning), produced(morning.Add(time.Minute))}}
	staging := &fakeStaging{insertErr: errors.New("connection reset")}
	svc := NewIngestionService(src, &fakeLog{}, staging, nil, nil, zap.NewNop())

	svc.Tick(context.Background())
	svc.Tick(context.Background())
	assert.Len(t, staging.ensured, 1)
}

func TestTickMidnightRollover(t *testing.T) {
	dir := t.TempDir()
	log, err := appendlog.New(dir)
	require.NoError(t, err)

	beforeMidnight := time.Date(2024, 3, 10, 23, 59, 59, 0, time.Local)
	src := &scriptedSource{steps: []step{produced(beforeMidnight), produced(beforeMidnight.Add(2 * time.Second))}}
	staging := &fakeStaging{}
	svc := NewIngestionService(src, log, staging, nil, nil, zap.NewNop())

	require.Equal(t, OutcomeSuccess, svc.Tick(context.Background()).Status)
	require.Equal(t, OutcomeSuccess, svc.Tick(context.Background()).Status)

	assert.Equal(t, []partition.Key{"10_03_24", "11_03_24"}, staging.ensured)
	for _, key := range []partition.Key{"10_03_24", "11_03_24"} {
		data, err := os.ReadFile(log.Path(key, "station01"))
		require.NoError(t, err)
		assert.Equal(t, 2, countLines(data), key)
	}
}

func TestRunContinuesPastFailuresUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{
		steps: []step{
			{err: errors.New("timeout")},
			produced(morning),
			{result: source.Skipped("garbage")},
			produced(morning.Add(time.Minute)),
		},
		after: cancel,
	}
	staging := &fakeStaging{}
	rec := newRecorder()
	svc := NewIngestionService(src, &fakeLog{}, staging, nil, rec, zap.NewNop(), WithRetryBackoff(time.Millisecond, time.Millisecond))

	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, staging.inserted, 2)
	assert.Equal(t, int64(1), staging.inserted[0].SequenceID)
	assert.Equal(t, int64(2), staging.inserted[1].SequenceID)
	assert.Equal(t, 1, rec.ticks["failed"])
	assert.Equal(t, 2, rec.ticks["success"])
}

// brokenSource fails every read immediately, like an unplugged meter.
type brokenSource struct{ reads int }

func (b *brokenSource) Next(context.Context, int64) (source.Result, error) {
	b.reads++
	return source.Result{}, errors.New("open /dev/ttyACM0: no such file or directory")
}

func (b *brokenSource) Close() error { return nil }

func TestRunBacksOffWhileSourceFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	src := &brokenSource{}
	rec := newRecorder()
	svc := NewIngestionService(src, &fakeLog{}, &fakeStaging{}, nil, rec, zap.NewNop(),
		WithRetryBackoff(10*time.Millisecond, 20*time.Millisecond))

	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// 10ms then 20ms steps within 100ms allow at most a handful of reads.
	assert.GreaterOrEqual(t, src.reads, 2)
	assert.LessOrEqual(t, src.reads, 8)
}

func TestNextDelayDoublesUpToLimit(t *testing.T) {
	svc := NewIngestionService(&scriptedSource{}, &fakeLog{}, &fakeStaging{}, nil, nil, zap.NewNop(),
		WithRetryBackoff(time.Second, 5*time.Second))

	var got []time.Duration
	var d time.Duration
	for i := 0; i < 5; i++ {
		d = svc.nextDelay(d)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)

	defaults := NewIngestionService(&scriptedSource{}, &fakeLog{}, &fakeStaging{}, nil, nil, zap.NewNop())
	assert.Equal(t, DefaultRetryMin, defaults.nextDelay(0))
	assert.Equal(t, DefaultRetryMax, defaults.nextDelay(DefaultRetryMax))
}

func TestPrepareNext(t *testing.T) {
	log, staging := &fakeLog{}, &fakeStaging{}
	svc := NewIngestionService(&scriptedSource{}, log, staging, nil, nil, zap.NewNop())

	require.NoError(t, svc.PrepareNext(context.Background(), "31_12_24", "station01"))
	assert.Equal(t, []partition.Key{"01_01_25"}, staging.ensured)
	assert.Equal(t, []partition.Key{"01_01_25"}, log.ensured)

	staging.ensureErr = errors.New("db down")
	err := svc.PrepareNext(context.Background(), "31_12_24", "station01")
	assert.ErrorContains(t, err, "staging")

	assert.Error(t, svc.PrepareNext(context.Background(), "garbage", "station01"))
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
