package claim

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

type TestContext interface {
	Do(ctx context.Context, method, path string, body any) error
	LastStatus() int
	LastBody() []byte
	Field(name string) (any, error)
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers claiming, pickup verification and cancellation.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &claimSteps{tc: tc}

	ctx.Step(`^I claim the donation for "([^"]*)" with a buffer of "([^"]*)"$`, steps.claim)
	ctx.Step(`^I save the pickup code$`, steps.saveCode)
	ctx.Step(`^I verify the pickup with the saved code$`, steps.verifySaved)
	ctx.Step(`^I verify the pickup with code "([^"]*)"$`, steps.verify)
	ctx.Step(`^I verify the pickup with a wrong code (\d+) times$`, steps.verifyWrongTimes)
	ctx.Step(`^I cancel my claim$`, steps.cancel)
}

type claimSteps struct {
	tc TestContext
}

func (s *claimSteps) claim(ctx context.Context, mode, buffer string) error {
	id, err := s.tc.Saved("donation")
	if err != nil {
		return err
	}
	body := map[string]string{"deliveryMode": mode, "pickupBufferTime": buffer}
	if err := s.tc.Do(ctx, "POST", "/food-donations/"+id+"/claim", body); err != nil {
		return err
	}
	if s.tc.LastStatus() == 201 {
		claimID, err := s.tc.Field("id")
		if err != nil {
			return err
		}
		s.tc.Save("claim", fmt.Sprint(claimID))
	}
	return nil
}

func (s *claimSteps) saveCode() error {
	code, err := s.tc.Field("otp")
	if err != nil {
		return err
	}
	s.tc.Save("otp", fmt.Sprint(code))
	return nil
}

func (s *claimSteps) verify(ctx context.Context, code string) error {
	id, err := s.tc.Saved("donation")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, "POST", "/food-donations/"+id+"/verify-otp", map[string]string{"otp": code})
}

func (s *claimSteps) verifySaved(ctx context.Context) error {
	code, err := s.tc.Saved("otp")
	if err != nil {
		return err
	}
	return s.verify(ctx, code)
}

func (s *claimSteps) verifyWrongTimes(ctx context.Context, n int) error {
	code, err := s.tc.Saved("otp")
	if err != nil {
		return err
	}
	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}
	for i := 0; i < n; i++ {
		if err := s.verify(ctx, wrong); err != nil {
			return err
		}
		if s.tc.LastStatus() != 409 {
			return fmt.Errorf("attempt %d: expected 409, got %d: %s", i+1, s.tc.LastStatus(), s.tc.LastBody())
		}
	}
	return nil
}

func (s *claimSteps) cancel(ctx context.Context) error {
	id, err := s.tc.Saved("claim")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, "DELETE", "/claims/"+id, nil)
}
