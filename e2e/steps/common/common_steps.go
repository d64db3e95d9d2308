package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Status() int
	Body() string
	StringField(path string) (string, error)
}

// RegisterSteps registers generic response assertions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) statusShouldBe(_ context.Context, status int) error {
	if s.tc.Status() != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(_ context.Context, path, want string) error {
	got, err := s.tc.StringField(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected %s to be %q, got %q", path, want, got)
	}
	return nil
}
