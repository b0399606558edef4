// Package storetest is the behavioural contract every ports.Store backend must
// satisfy. Backends run it from their own tests with a fresh store per test.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"whitelist/internal/admission/ports"
	id "whitelist/pkg/domain"
	"whitelist/pkg/platform/sentinel"
)

// Suite exercises a Store. NewStore must return an empty, uninitialised store.
type Suite struct {
	suite.Suite
	NewStore func(t *testing.T) ports.Store

	store ports.Store
	ctx   context.Context
	now   time.Time
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.store = s.NewStore(s.T())
}

func (s *Suite) deploy(capacity int) {
	_, _, err := s.store.Init(s.ctx, capacity, s.now)
	s.Require().NoError(err)
}

func identity(n int) id.Identity {
	return id.Identity(fmt.Sprintf("member-%03d", n))
}

func (s *Suite) TestBeforeInit() {
	_, err := s.store.Registry(s.ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Count(s.ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Admit(s.ctx, identity(1), s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	ok, err := s.store.IsMember(s.ctx, identity(1))
	s.NoError(err)
	s.False(ok)
}

func (s *Suite) TestInit() {
	s.Run("creates an empty registry", func() {
		reg, created, err := s.store.Init(s.ctx, 10, s.now)
		s.Require().NoError(err)
		s.True(created)
		s.Equal(10, reg.Capacity)
		s.Equal(0, reg.Count)
		s.True(reg.CreatedAt.Equal(s.now))
	})

	s.Run("same capacity is a no-op", func() {
		_, err := s.store.Admit(s.ctx, identity(1), s.now)
		s.Require().NoError(err)

		reg, created, err := s.store.Init(s.ctx, 10, s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.False(created)
		s.Equal(1, reg.Count, "re-deploying must not reset members")
		s.True(reg.CreatedAt.Equal(s.now))
	})

	s.Run("same instant is still not a creation", func() {
		_, created, err := s.store.Init(s.ctx, 10, s.now)
		s.Require().NoError(err)
		s.False(created)
	})

	s.Run("different capacity conflicts", func() {
		_, created, err := s.store.Init(s.ctx, 11, s.now)
		s.ErrorIs(err, sentinel.ErrConflict)
		s.False(created)

		reg, err := s.store.Registry(s.ctx)
		s.Require().NoError(err)
		s.Equal(10, reg.Capacity, "capacity is immutable")
	})
}

// Count equals the number of distinct admitted identities and never exceeds capacity.
func (s *Suite) TestCountInvariant() {
	s.deploy(3)

	sequence := []int{1, 2, 1, 3, 2, 4, 5, 3}
	seen := map[id.Identity]bool{}
	for _, n := range sequence {
		_, err := s.store.Admit(s.ctx, identity(n), s.now)
		if err == nil {
			seen[identity(n)] = true
		}

		count, cErr := s.store.Count(s.ctx)
		s.Require().NoError(cErr)
		s.Equal(len(seen), count)
		s.LessOrEqual(count, 3)
	}
}

func (s *Suite) TestAdmitIsIdempotent() {
	s.deploy(5)

	first, err := s.store.Admit(s.ctx, identity(1), s.now)
	s.Require().NoError(err)
	s.True(first.Created)
	s.Equal(1, first.Count)
	s.Equal(1, first.Member.Seq)

	again, err := s.store.Admit(s.ctx, identity(1), s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.False(again.Created)
	s.Equal(1, again.Count)
	s.Equal(1, again.Member.Seq)
	s.True(again.Member.AdmittedAt.Equal(s.now), "repeat keeps the original admission time")
}

func (s *Suite) TestCapacityBoundary() {
	s.deploy(3)

	for n := 1; n <= 3; n++ {
		adm, err := s.store.Admit(s.ctx, identity(n), s.now)
		s.Require().NoError(err)
		s.Equal(n, adm.Member.Seq)
	}

	_, err := s.store.Admit(s.ctx, identity(4), s.now)
	s.ErrorIs(err, sentinel.ErrCapacityReached)

	adm, err := s.store.Admit(s.ctx, identity(2), s.now)
	s.Require().NoError(err, "existing members stay admissible when full")
	s.False(adm.Created)

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, count)

	reg, err := s.store.Registry(s.ctx)
	s.Require().NoError(err)
	s.True(reg.Full())
}

func (s *Suite) TestMembershipReflectsState() {
	s.deploy(2)

	ok, err := s.store.IsMember(s.ctx, identity(1))
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.store.Admit(s.ctx, identity(1), s.now)
	s.Require().NoError(err)

	ok, err = s.store.IsMember(s.ctx, identity(1))
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.store.Admit(s.ctx, identity(2), s.now)
	s.Require().NoError(err)
	_, err = s.store.Admit(s.ctx, identity(3), s.now)
	s.Require().ErrorIs(err, sentinel.ErrCapacityReached)

	ok, err = s.store.IsMember(s.ctx, identity(3))
	s.Require().NoError(err)
	s.False(ok, "a rejected identity is not a member")

	ok, err = s.store.IsMember(s.ctx, identity(1))
	s.Require().NoError(err)
	s.True(ok, "membership is never revoked")
}

func (s *Suite) TestMembers() {
	s.deploy(5)
	for _, n := range []int{1, 3} {
		_, err := s.store.Admit(s.ctx, identity(n), s.now)
		s.Require().NoError(err)
	}

	got, err := s.store.Members(s.ctx, []id.Identity{identity(1), identity(2), identity(3)})
	s.Require().NoError(err)
	s.Equal(map[id.Identity]bool{
		identity(1): true,
		identity(2): false,
		identity(3): true,
	}, got)

	empty, err := s.store.Members(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

// Two callers racing for the last slot: exactly one wins.
func (s *Suite) TestRaceForFinalSlot() {
	s.deploy(1)

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for n := 1; n <= 2; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := s.store.Admit(s.ctx, identity(n), s.now)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, sentinel.ErrCapacityReached):
				rejected.Add(1)
			}
		}(n)
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), admitted.Load())
	s.Equal(int32(1), rejected.Load())

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// Many concurrent callers, some repeating: the registry fills exactly to capacity
// and every admitted identity gets a distinct sequence number.
func (s *Suite) TestConcurrentAdmissions() {
	const capacity, callers = 10, 40
	s.deploy(capacity)

	var created atomic.Int32
	seqs := make(chan int, callers*2)
	g, ctx := errgroup.WithContext(s.ctx)
	for n := range callers {
		for range 2 {
			g.Go(func() error {
				adm, err := s.store.Admit(ctx, identity(n), s.now)
				if errors.Is(err, sentinel.ErrCapacityReached) {
					return nil
				}
				if err != nil {
					return err
				}
				if adm.Created {
					created.Add(1)
					seqs <- adm.Member.Seq
				}
				return nil
			})
		}
	}
	s.Require().NoError(g.Wait())
	close(seqs)

	s.Equal(int32(capacity), created.Load())
	unique := map[int]bool{}
	for seq := range seqs {
		s.False(unique[seq], "duplicate seq %d", seq)
		unique[seq] = true
		s.GreaterOrEqual(seq, 1)
		s.LessOrEqual(seq, capacity)
	}

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(capacity, count)
}
