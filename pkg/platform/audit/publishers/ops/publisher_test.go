package ops

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	audit "whitelist/pkg/platform/audit"
)

type fakeSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
	calls  int
}

func (f *fakeSink) Append(ctx context.Context, event audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.events = append(f.events, event)
	return nil
}

type PublisherSuite struct {
	suite.Suite
	sink    *fakeSink
	metrics *Metrics
	pub     *Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.sink = &fakeSink{}
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.pub = NewPublisher(s.sink,
		WithMetrics(s.metrics),
		WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)),
	)
}

func (s *PublisherSuite) TestEmitStampsEvent() {
	err := s.pub.Emit(context.Background(), audit.Event{
		Action:  string(audit.EventMemberAdmitted),
		Subject: "alice",
	})
	s.Require().NoError(err)
	s.Require().Len(s.sink.events, 1)

	got := s.sink.events[0]
	s.NotEmpty(got.ID)
	s.False(got.Timestamp.IsZero())
	s.Equal(audit.CategoryCompliance, got.Category)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Published.WithLabelValues("compliance")))
}

func (s *PublisherSuite) TestEmitSurvivesCanceledRequest() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Require().NoError(s.pub.Emit(ctx, audit.Event{Action: string(audit.EventMemberAdmitted)}))
	s.Len(s.sink.events, 1)
}

func (s *PublisherSuite) TestSinkFailureIsSwallowedAndOpensCircuit() {
	s.sink.err = errors.New("broker down")

	s.Require().NoError(s.pub.Emit(context.Background(), audit.Event{Action: "a"}))
	s.Require().NoError(s.pub.Emit(context.Background(), audit.Event{Action: "b"}))
	s.Require().NoError(s.pub.Emit(context.Background(), audit.Event{Action: "c"}))

	s.Equal(2, s.sink.calls, "third event must be dropped by the open circuit")
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.DeliveryFailures))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CircuitBreakerDropped))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CircuitBreakerState))
}

func (s *PublisherSuite) TestSamplingOnlyAppliesToOperations() {
	sampler := NewSampler(0)
	pub := NewPublisher(s.sink, WithMetrics(s.metrics), WithSampler(sampler))

	s.Require().NoError(pub.Emit(context.Background(), audit.Event{Action: string(audit.EventMemberAlreadyRegistered)}))
	s.Require().NoError(pub.Emit(context.Background(), audit.Event{Action: string(audit.EventAdmissionRejected)}))

	s.Require().Len(s.sink.events, 1)
	s.Equal(string(audit.EventAdmissionRejected), s.sink.events[0].Action)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Sampled))
}

func TestSampler(t *testing.T) {
	s := NewSampler(0.5)
	s.roll = func() float64 { return 0.4 }
	assert.True(t, s.Keep("anything"))

	s.roll = func() float64 { return 0.6 }
	assert.False(t, s.Keep("anything"))

	s.SetRate("noisy", 0)
	assert.False(t, s.Keep("noisy"))

	s.SetRate("important", 7)
	require.True(t, s.Keep("important"))
}
