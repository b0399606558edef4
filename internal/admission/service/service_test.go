package service

//go:generate mockgen -source=../ports/ports.go -destination=../mocks/mocks.go -package=mocks Store,AuditPublisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	admissionmetrics "whitelist/internal/admission/metrics"
	"whitelist/internal/admission/mocks"
	"whitelist/internal/admission/models"
	"whitelist/internal/admission/store/memory"
	id "whitelist/pkg/domain"
	dErrors "whitelist/pkg/domain-errors"
	audit "whitelist/pkg/platform/audit"
	auditmemory "whitelist/pkg/platform/audit/store/memory"
	"whitelist/pkg/platform/sentinel"
	"whitelist/pkg/requestcontext"
)

// =============================================================================
// Registry behaviour against the in-memory store
// =============================================================================
// Justification: these are the registry's contract (count bound, idempotence,
// capacity boundary, monotonic membership). They run against a real store so a
// regression in either layer shows up here.

type ServiceSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	audits  *auditmemory.InMemoryStore
	metrics *admissionmetrics.Metrics
	svc     *Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.audits = auditmemory.NewInMemoryStore()
	s.metrics = admissionmetrics.New(prometheus.NewRegistry())
	s.now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.svc = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(auditSink{s.audits}),
		WithMetrics(s.metrics),
	)
}

// auditSink adapts the in-memory audit store to the publisher port.
type auditSink struct{ store *auditmemory.InMemoryStore }

func (a auditSink) Emit(ctx context.Context, e audit.Event) error { return a.store.Append(ctx, e) }

func (s *ServiceSuite) deploy(capacity int) {
	_, err := s.svc.Deploy(s.ctx, capacity)
	s.Require().NoError(err)
}

func member(n int) id.Identity {
	return id.Identity(fmt.Sprintf("0x%040x", n))
}

func (s *ServiceSuite) TestDeploy() {
	s.Run("rejects non-positive capacity", func() {
		for _, capacity := range []int{0, -5} {
			_, err := s.svc.Deploy(s.ctx, capacity)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	s.Run("creates once and audits the deployment", func() {
		reg, err := s.svc.Deploy(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal(10, reg.Capacity)
		s.Equal(float64(10), testutil.ToFloat64(s.metrics.Capacity))

		events, _ := s.audits.ListRecent(s.ctx, 10)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventRegistryDeployed), events[0].Action)
		s.Equal(10, events[0].Capacity)
	})

	s.Run("redeploy with same capacity is a no-op", func() {
		later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
		_, err := s.svc.Deploy(later, 10)
		s.Require().NoError(err)

		events, _ := s.audits.ListRecent(s.ctx, 10)
		s.Len(events, 1, "no second deployment event")
	})

	s.Run("redeploy at the same instant is not audited again", func() {
		_, err := s.svc.Deploy(s.ctx, 10)
		s.Require().NoError(err)

		events, _ := s.audits.ListRecent(s.ctx, 10)
		s.Len(events, 1)
	})

	s.Run("capacity cannot change", func() {
		_, err := s.svc.Deploy(s.ctx, 20)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestRegister_AdmitsNewIdentity() {
	s.deploy(3)

	adm, err := s.svc.Register(s.ctx, member(1))
	s.Require().NoError(err)
	s.True(adm.Created)
	s.Equal(1, adm.Count)
	s.Equal(1, adm.Member.Seq)
	s.True(adm.Member.AdmittedAt.Equal(s.now))

	ok, err := s.svc.IsMember(s.ctx, member(1))
	s.Require().NoError(err)
	s.True(ok)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Admissions))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Members))

	events, _ := s.audits.ListBySubject(s.ctx, member(1).String())
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventMemberAdmitted), events[0].Action)
	s.Equal(1, events[0].Count)
}

func (s *ServiceSuite) TestRegister_IsIdempotent() {
	s.deploy(3)

	_, err := s.svc.Register(s.ctx, member(1))
	s.Require().NoError(err)
	again, err := s.svc.Register(s.ctx, member(1))
	s.Require().NoError(err)
	s.False(again.Created)

	count, err := s.svc.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count, "a repeat is not charged as a new admission")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.DuplicateRegisters))
}

func (s *ServiceSuite) TestRegister_CapacityBoundary() {
	s.deploy(2)

	for n := 1; n <= 2; n++ {
		_, err := s.svc.Register(s.ctx, member(n))
		s.Require().NoError(err)
	}

	_, err := s.svc.Register(s.ctx, member(3))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CapacityRejections))

	ok, err := s.svc.IsMember(s.ctx, member(3))
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.svc.Register(s.ctx, member(1))
	s.NoError(err, "members may re-register when the whitelist is full")

	count, err := s.svc.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)

	events, _ := s.audits.ListBySubject(s.ctx, member(3).String())
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAdmissionRejected), events[0].Action)
	s.Equal(audit.CategorySecurity, events[0].Category)
	s.Equal("capacity_exceeded", events[0].Reason)
}

func (s *ServiceSuite) TestRegister_RequiresCaller() {
	s.deploy(2)
	_, err := s.svc.Register(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestRegister_BeforeDeploy() {
	_, err := s.svc.Register(s.ctx, member(1))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.Count(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRegister_RaceForFinalSlot() {
	s.deploy(1)

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for n := 1; n <= 2; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.svc.Register(s.ctx, member(n))
			if err == nil {
				admitted.Add(1)
			} else if dErrors.HasCode(err, dErrors.CodeCapacityExceeded) {
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), admitted.Load())
	s.Equal(int32(1), rejected.Load())
}

func (s *ServiceSuite) TestStatus() {
	s.deploy(10)
	_, err := s.svc.Register(s.ctx, member(1))
	s.Require().NoError(err)

	st, err := s.svc.Status(s.ctx, member(1))
	s.Require().NoError(err)
	s.Equal(models.Status{Capacity: 10, Count: 1, Remaining: 9, Joined: true}, st)

	anon, err := s.svc.Status(s.ctx, "")
	s.Require().NoError(err)
	s.False(anon.Joined)
	s.Equal(1, anon.Count)
}

func (s *ServiceSuite) TestMembership() {
	s.deploy(10)
	_, err := s.svc.Register(s.ctx, member(1))
	s.Require().NoError(err)

	got, err := s.svc.Membership(s.ctx, []id.Identity{member(1), member(2), member(1), ""})
	s.Require().NoError(err)
	s.Equal(map[id.Identity]bool{member(1): true, member(2): false}, got)

	empty, err := s.svc.Membership(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(empty)

	tooMany := make([]id.Identity, MaxLookupBatch+1)
	for i := range tooMany {
		tooMany[i] = member(i + 100)
	}
	_, err = s.svc.Membership(s.ctx, tooMany)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestIsMember_RequiresIdentity() {
	_, err := s.svc.IsMember(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// =============================================================================
// Store failure translation
// =============================================================================
// Justification: infrastructure errors must surface as coded errors without
// leaking into audit or metrics as admissions.

type ServiceErrorSuite struct {
	suite.Suite
	ctrl  *gomock.Controller
	store *mocks.MockStore
	pub   *mocks.MockAuditPublisher
	svc   *Service
}

func TestServiceErrorSuite(t *testing.T) {
	suite.Run(t, new(ServiceErrorSuite))
}

func (s *ServiceErrorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.pub = mocks.NewMockAuditPublisher(s.ctrl)
	s.svc = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.pub),
	)
}

func (s *ServiceErrorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceErrorSuite) TestAdmitFailureIsInternal() {
	s.store.EXPECT().Admit(gomock.Any(), id.Identity("alice"), gomock.Any()).
		Return(models.Admission{}, errors.New("connection reset"))

	_, err := s.svc.Register(context.Background(), "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceErrorSuite) TestUnavailableStoreIsTimeout() {
	s.store.EXPECT().Count(gomock.Any()).Return(0, fmt.Errorf("dial: %w", sentinel.ErrUnavailable))

	_, err := s.svc.Count(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *ServiceErrorSuite) TestCapacityRejectionIsAudited() {
	s.store.EXPECT().Admit(gomock.Any(), id.Identity("bob"), gomock.Any()).
		Return(models.Admission{}, sentinel.ErrCapacityReached)
	s.pub.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventAdmissionRejected), e.Action)
		s.Equal("bob", e.Subject)
		return nil
	})

	_, err := s.svc.Register(context.Background(), "bob")
	s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
}

func (s *ServiceErrorSuite) TestDeployConflictReportsStoredCapacity() {
	s.store.EXPECT().Init(gomock.Any(), 5, gomock.Any()).
		Return(models.Registry{Capacity: 10}, false, sentinel.ErrConflict)

	_, err := s.svc.Deploy(context.Background(), 5)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "capacity 10")
}

func (s *ServiceErrorSuite) TestStatusMembershipFailure() {
	s.store.EXPECT().Registry(gomock.Any()).Return(models.Registry{Capacity: 3, Count: 1}, nil)
	s.store.EXPECT().IsMember(gomock.Any(), id.Identity("carol")).Return(false, errors.New("boom"))

	_, err := s.svc.Status(context.Background(), "carol")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
