package whitelist

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Deploy(capacity int) error
	OpenSession(name, address string, chainID int64) error
	Session(name string) (string, error)
	GET(path string, headers map[string]string) error
	POST(path string, body any, headers map[string]string) error
	PostStatus(path string, headers map[string]string) (int, error)
	GetLastStatusCode() int
}

// RegisterSteps registers whitelist step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &whitelistSteps{tc: tc}

	ctx.Step(`^a whitelist with capacity (\d+)$`, steps.deploy)
	ctx.Step(`^"([^"]*)" connects with address "([^"]*)" on chain (\d+)$`, steps.connect)
	ctx.Step(`^"([^"]*)" registers$`, steps.register)
	ctx.Step(`^an anonymous visitor registers$`, steps.anonymousRegister)
	ctx.Step(`^"([^"]*)" checks their status$`, steps.status)
	ctx.Step(`^I look up member "([^"]*)"$`, steps.lookupMember)
	ctx.Step(`^"([^"]*)" and "([^"]*)" register at the same time$`, steps.registerConcurrently)
	ctx.Step(`^exactly one of them should be admitted$`, steps.exactlyOneAdmitted)
}

type whitelistSteps struct {
	tc TestContext

	mu       sync.Mutex
	statuses []int
}

func (s *whitelistSteps) deploy(ctx context.Context, capacity int) error {
	return s.tc.Deploy(capacity)
}

func (s *whitelistSteps) connect(ctx context.Context, name, address string, chainID int64) error {
	return s.tc.OpenSession(name, address, chainID)
}

func (s *whitelistSteps) bearer(name string) (map[string]string, error) {
	token, err := s.tc.Session(name)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

func (s *whitelistSteps) register(ctx context.Context, name string) error {
	headers, err := s.bearer(name)
	if err != nil {
		return err
	}
	return s.tc.POST("/v1/whitelist/register", nil, headers)
}

func (s *whitelistSteps) anonymousRegister(ctx context.Context) error {
	return s.tc.POST("/v1/whitelist/register", nil, nil)
}

func (s *whitelistSteps) status(ctx context.Context, name string) error {
	headers, err := s.bearer(name)
	if err != nil {
		return err
	}
	return s.tc.GET("/v1/whitelist/me", headers)
}

func (s *whitelistSteps) lookupMember(ctx context.Context, identity string) error {
	return s.tc.GET("/v1/whitelist/members/"+url.PathEscape(identity), nil)
}

// registerConcurrently races two sessions. Statuses are collected here since
// the shared last-response slot cannot hold both.
func (s *whitelistSteps) registerConcurrently(ctx context.Context, first, second string) error {
	s.statuses = nil
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{first, second} {
		headers, err := s.bearer(name)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := s.tc.PostStatus("/v1/whitelist/register", headers)
			if err != nil {
				errs <- err
				return
			}
			s.mu.Lock()
			s.statuses = append(s.statuses, status)
			s.mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func (s *whitelistSteps) exactlyOneAdmitted(ctx context.Context) error {
	created, full := 0, 0
	for _, status := range s.statuses {
		switch status {
		case 201:
			created++
		case 409:
			full++
		}
	}
	if created != 1 || full != len(s.statuses)-1 {
		return fmt.Errorf("expected one admission and %d rejections, got statuses %v", len(s.statuses)-1, s.statuses)
	}
	return nil
}
