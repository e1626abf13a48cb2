package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"househunt/internal/pkg/llmclient"
	"househunt/internal/usage"
)

func TestPrometheusHooks(t *testing.T) {
	hooks := NewPrometheusHooks()
	ok := upstreamRequests.WithLabelValues("hooks-test", "200")
	failed := upstreamRequests.WithLabelValues("hooks-test", "error")
	okBefore := testutil.ToFloat64(ok)
	failedBefore := testutil.ToFloat64(failed)

	info := llmclient.RequestInfo{Provider: "hooks-test", Stream: true}
	hooks.OnRequestEnd(context.Background(), llmclient.ResponseInfo{RequestInfo: info, StatusCode: 200, Duration: time.Millisecond})
	hooks.OnRequestEnd(context.Background(), llmclient.ResponseInfo{RequestInfo: info, Duration: time.Millisecond})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestStreamRecorder(t *testing.T) {
	r := NewStreamRecorder(true)
	completed := chatStreams.WithLabelValues("recorder-test", usage.OutcomeCompleted)
	before := testutil.ToFloat64(completed)
	inFlight := testutil.ToFloat64(streamsInFlight)

	done := r.Started()
	assert.Equal(t, inFlight+1, testutil.ToFloat64(streamsInFlight))
	r.FirstFragment("recorder-test", 50*time.Millisecond)
	r.Finished("recorder-test", usage.OutcomeCompleted, 4)
	done()

	assert.Equal(t, inFlight, testutil.ToFloat64(streamsInFlight))
	assert.Equal(t, before+1, testutil.ToFloat64(completed))
}

func TestStreamRecorder_Disabled(t *testing.T) {
	completed := chatStreams.WithLabelValues("disabled-test", usage.OutcomeCompleted)
	before := testutil.ToFloat64(completed)

	for _, r := range []*StreamRecorder{nil, {}, NewStreamRecorder(false)} {
		r.Started()()
		r.FirstFragment("disabled-test", time.Second)
		r.Finished("disabled-test", usage.OutcomeCompleted, 1)
	}
	assert.Equal(t, before, testutil.ToFloat64(completed))
}

func TestStreamRecorder_RejectedSkipsFragments(t *testing.T) {
	r := NewStreamRecorder(true)
	rejected := chatStreams.WithLabelValues("rejected-test", usage.OutcomeRejected)
	before := testutil.ToFloat64(rejected)
	series := testutil.CollectAndCount(chatFragments)

	r.Finished("rejected-test", usage.OutcomeRejected, 0)

	assert.Equal(t, before+1, testutil.ToFloat64(rejected))
	assert.Equal(t, series, testutil.CollectAndCount(chatFragments))
}
