package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the common steps use.
type TestContext interface {
	AddUser(name, role string)
	ActAs(name string) error
	Do(ctx context.Context, method, path string, body any) error
	LastStatus() int
	LastBody() []byte
	Field(name string) (any, error)
}

// RegisterSteps registers callers, raw requests and response assertions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^a donor "([^"]*)"$`, steps.donor)
	ctx.Step(`^an organization "([^"]*)"$`, steps.organization)
	ctx.Step(`^an admin "([^"]*)"$`, steps.admin)
	ctx.Step(`^I am "([^"]*)"$`, tc.ActAs)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error should be "([^"]*)"$`, steps.errorShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) donor(name string) error {
	s.tc.AddUser(name, "donor")
	return nil
}

func (s *commonSteps) organization(name string) error {
	s.tc.AddUser(name, "organization")
	return nil
}

func (s *commonSteps) admin(name string) error {
	s.tc.AddUser(name, "admin")
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.Do(ctx, "GET", path, nil)
}

func (s *commonSteps) statusShouldBe(want int) error {
	if got := s.tc.LastStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, strings.TrimSpace(string(s.tc.LastBody())))
	}
	return nil
}

func (s *commonSteps) errorShouldBe(code string) error {
	got, err := s.tc.Field("error")
	if err != nil {
		return err
	}
	if got != code {
		return fmt.Errorf("expected error %q, got %v", code, got)
	}
	return nil
}
