package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"foodlink/pkg/domain"
	"foodlink/pkg/requestcontext"
	"foodlink/pkg/testutil"
)

type stubValidator struct {
	actor domain.Actor
	err   error
}

func (v stubValidator) ValidateToken(string) (domain.Actor, error) {
	return v.actor, v.err
}

func serve(v JWTValidator, header string) (*httptest.ResponseRecorder, domain.Actor) {
	var seen domain.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	RequireAuth(v, slog.New(slog.NewTextHandler(io.Discard, nil)))(next).ServeHTTP(rr, req)
	return rr, seen
}

func TestRequireAuth(t *testing.T) {
	user := uuid.New()

	testutil.Given(t, "a valid token", func(t *testing.T) {
		v := stubValidator{actor: domain.Actor{UserID: domain.UserID(user), Roles: domain.NewRoleSet(domain.RoleOrganization)}}
		rr, actor := serve(v, "Bearer good")

		testutil.Then(t, "the actor reaches the handler", func(t *testing.T) {
			assert.Equal(t, http.StatusNoContent, rr.Code)
			assert.Equal(t, domain.UserID(user), actor.UserID)
			assert.Equal(t, []string{"organization"}, actor.Roles.Strings())
		})
	})

	testutil.Given(t, "no bearer token", func(t *testing.T) {
		for _, header := range []string{"", "Basic abc", "Bearer "} {
			rr, _ := serve(stubValidator{}, header)
			testutil.Then(t, "the request is rejected for "+header, func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
		}
	})

	testutil.Given(t, "a token the validator rejects", func(t *testing.T) {
		rr, _ := serve(stubValidator{err: errors.New("expired")}, "Bearer bad")
		testutil.Then(t, "the request is rejected", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
		})
	})

	testutil.Given(t, "a validator that resolves no user", func(t *testing.T) {
		rr, _ := serve(stubValidator{actor: domain.Actor{Roles: domain.NewRoleSet(domain.RoleDonor)}}, "Bearer odd")
		testutil.Then(t, "the request is rejected", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
		})
	})
}
