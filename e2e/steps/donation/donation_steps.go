package donation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

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

// RegisterSteps registers donation publishing and search steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &donationSteps{tc: tc}

	ctx.Step(`^I publish a donation "([^"]*)" of "([^"]*)" at (-?[\d.]+), (-?[\d.]+) expiring in (\d+) hours$`, steps.publish)
	ctx.Step(`^I delete the donation$`, steps.delete)
	ctx.Step(`^searching near (-?[\d.]+), (-?[\d.]+) for "([^"]*)" eventually finds the donation$`, steps.eventuallyFound)
	ctx.Step(`^searching near (-?[\d.]+), (-?[\d.]+) for "([^"]*)" eventually does not find the donation$`, steps.eventuallyGone)
	ctx.Step(`^the donation status should be "([^"]*)"$`, steps.statusShouldBe)
}

type donationSteps struct {
	tc TestContext
}

func (s *donationSteps) publish(ctx context.Context, title, foodType string, lat, long float64, hours int) error {
	body := map[string]any{
		"title":     title,
		"foodTypes": []string{foodType},
		"quantity":  10,
		"latitude":  lat,
		"longitude": long,
		"expiresAt": time.Now().Add(time.Duration(hours) * time.Hour).UTC().Format(time.RFC3339),
	}
	if err := s.tc.Do(ctx, "POST", "/food-donations", body); err != nil {
		return err
	}
	if s.tc.LastStatus() != 201 {
		return fmt.Errorf("publish failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	id, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	s.tc.Save("donation", fmt.Sprint(id))
	return nil
}

func (s *donationSteps) delete(ctx context.Context) error {
	id, err := s.tc.Saved("donation")
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, "DELETE", "/food-donations/"+id, nil)
}

func (s *donationSteps) search(ctx context.Context, lat, long, foodType string) (bool, error) {
	id, err := s.tc.Saved("donation")
	if err != nil {
		return false, err
	}
	q := url.Values{"lat": {lat}, "long": {long}, "prefersFoodType": {foodType}, "pageSize": {"50"}}
	if err := s.tc.Do(ctx, "GET", "/food-donations?"+q.Encode(), nil); err != nil {
		return false, err
	}
	if s.tc.LastStatus() != 200 {
		return false, fmt.Errorf("search failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return strings.Contains(string(s.tc.LastBody()), `"id":"`+id+`"`), nil
}

// eventually polls while the outbox worker mirrors the donation.
func (s *donationSteps) eventually(ctx context.Context, lat, long, foodType string, want bool) error {
	deadline := time.Now().Add(15 * time.Second)
	for {
		found, err := s.search(ctx, lat, long, foodType)
		if err != nil {
			return err
		}
		if found == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("donation found=%v after 15s, wanted %v", found, want)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func (s *donationSteps) eventuallyFound(ctx context.Context, lat, long, foodType string) error {
	return s.eventually(ctx, lat, long, foodType, true)
}

func (s *donationSteps) eventuallyGone(ctx context.Context, lat, long, foodType string) error {
	return s.eventually(ctx, lat, long, foodType, false)
}

func (s *donationSteps) statusShouldBe(ctx context.Context, want string) error {
	id, err := s.tc.Saved("donation")
	if err != nil {
		return err
	}
	if err := s.tc.Do(ctx, "GET", "/food-donations/"+id, nil); err != nil {
		return err
	}
	got, err := s.tc.Field("status")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected donation status %q, got %v", want, got)
	}
	return nil
}
