package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/minhd-vu/webserver/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the job lifecycle.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	ok := progress.UUIDToBytes(uuid.New())
	bad := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{JobID: ok, TS: now, Stage: progress.StageJobQueued},
		{JobID: bad, TS: now, Stage: progress.StageJobQueued},
		{JobID: ok, TS: now, Stage: progress.StageJobStart, WorkerID: 1, Dur: 2 * time.Millisecond},
		{JobID: bad, TS: now, Stage: progress.StageJobStart, WorkerID: 2},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsRunning))

	batch = []progress.Event{
		{JobID: ok, TS: now, Stage: progress.StageJobDone, WorkerID: 1, Dur: 10 * time.Millisecond},
		{JobID: bad, TS: now, Stage: progress.StageJobPanic, WorkerID: 2, Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsQueued))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues(resultSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues(resultPanic)))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1, testutil.CollectAndCount(sink.queueWait, "pool_job_queue_wait_seconds"))
	require.Equal(t, 2, testutil.CollectAndCount(sink.jobRuntime, "pool_job_runtime_seconds"))
}

func TestPrometheusSinkCountsRejections(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	jobID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobQueued},
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobRejected, Note: "thread pool is shut down"},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues(resultRejected)))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
