package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "foodlink/internal/jwt_token"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/httputil"
	request "foodlink/pkg/platform/middleware/request"
	"foodlink/pkg/requestcontext"
	"foodlink/pkg/testutil"
)

// whoami echoes the authenticated caller.
type whoami struct{}

func (whoami) Register(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		actor := requestcontext.Actor(r.Context())
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"user":  actor.UserID.String(),
			"roles": actor.Roles.Strings(),
			"timed": !requestcontext.Now(r.Context()).IsZero(),
		})
	})
	r.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
}

func newRouter(checks map[string]HealthCheck) (http.Handler, *jwttoken.JWTService) {
	tokens := jwttoken.NewJWTService("test-key", "foodlink", "foodlink-api")
	return NewRouter(Deps{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator: jwttoken.NewActorValidator(tokens),
		Checks:    checks,
		Handlers:  []Registrar{whoami{}},
	}), tokens
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	router, _ := newRouter(map[string]HealthCheck{"postgres": func(context.Context) error { return nil }})
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")
}

func TestHealthzReportsFailedChecks(t *testing.T) {
	router, _ := newRouter(map[string]HealthCheck{
		"redis":    func(context.Context) error { return errors.New("down") },
		"postgres": func(context.Context) error { return errors.New("down") },
		"sparql":   func(context.Context) error { return nil },
	})
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	got := testutil.UnmarshalResponse[healthResponse](t, rr)
	assert.Equal(t, []string{"postgres", "redis"}, got.Failed)
}

func TestMetricsIsUnauthenticated(t *testing.T) {
	router, _ := newRouter(nil)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(t, rr)
}

func TestRoutesRequireBearerToken(t *testing.T) {
	router, _ := newRouter(nil)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/whoami"))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

	req := testutil.NewRequest(t, http.MethodGet, "/whoami")
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestTokenCarriesActorAndClock(t *testing.T) {
	router, tokens := newRouter(nil)
	actor := testutil.NewActor(domain.RoleOrganization)
	token, err := tokens.GenerateAccessToken(actor, time.Hour)
	require.NoError(t, err)

	req := testutil.NewRequest(t, http.MethodGet, "/whoami")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(request.HeaderRequestID, "req-42")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "user", actor.UserID.String())
	testutil.AssertJSONContains(t, rr, "timed", true)
	assert.Equal(t, "req-42", rr.Header().Get(request.HeaderRequestID))
}

func TestPanicsBecomeInternalErrors(t *testing.T) {
	router, tokens := newRouter(nil)
	token, err := tokens.GenerateAccessToken(testutil.NewActor(domain.RoleDonor), time.Hour)
	require.NoError(t, err)

	req := testutil.NewRequest(t, http.MethodGet, "/panic")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}
