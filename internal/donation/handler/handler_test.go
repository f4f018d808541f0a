package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	claimstore "foodlink/internal/claim/store"
	"foodlink/internal/donation/models"
	"foodlink/internal/donation/service"
	"foodlink/internal/donation/store"
	outboxstore "foodlink/internal/outbox/store"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/tx"
	"foodlink/pkg/testutil"
)

// HandlerSuite drives the routes over real in-memory stores.
type HandlerSuite struct {
	suite.Suite
	router http.Handler
	store  *store.InMemoryStore
	donor  domain.Actor
	now    time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = store.NewInMemory()
	svc, err := service.New(s.store, claimstore.NewInMemory(), outboxstore.NewInMemory(), tx.NewLockRunner(), service.WithLogger(logger))
	s.Require().NoError(err)

	r := chi.NewRouter()
	New(svc, logger).Register(r)
	s.router = r
	s.donor = testutil.NewActor(domain.RoleDonor)
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
}

func (s *HandlerSuite) as(req *http.Request, actor domain.Actor) *http.Request {
	return testutil.WithTime(testutil.WithActor(req, actor), s.now)
}

func (s *HandlerSuite) body(expiresAt time.Time) map[string]any {
	return map[string]any{
		"title":     "Vegetable crates",
		"foodTypes": []string{"produce"},
		"allergens": []string{},
		"quantity":  3,
		"latitude":  48.85,
		"longitude": 2.35,
		"expiresAt": expiresAt,
	}
}

func (s *HandlerSuite) createDonation() models.DonationResponse {
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/food-donations", s.body(s.now.Add(5*time.Hour))), s.donor)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[models.DonationResponse](s.T(), rr)
}

func (s *HandlerSuite) TestCreate() {
	created := s.createDonation()
	s.Equal(models.StatusAvailable, created.Status)
	s.Equal(models.PriorityHigh, created.Priority)
	s.Equal([]string{"Produce"}, created.FoodTypes)
	s.Equal(s.donor.UserID.String(), created.OwnerID)
}

func (s *HandlerSuite) TestCreateMissingCoordinates() {
	body := s.body(s.now.Add(time.Hour))
	delete(body, "latitude")
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/food-donations", body), s.donor)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *HandlerSuite) TestCreateInvalidJSON() {
	req := s.as(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/food-donations", "{not json"), s.donor)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestCreateForbiddenForOrganization() {
	org := testutil.NewActor(domain.RoleOrganization)
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/food-donations", s.body(s.now.Add(time.Hour))), org)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *HandlerSuite) TestGetAndNotFound() {
	created := s.createDonation()

	req := s.as(testutil.NewRequest(s.T(), http.MethodGet, "/food-donations/"+created.ID), s.donor)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	req = s.as(testutil.NewRequest(s.T(), http.MethodGet, "/food-donations/"+domain.NewDonationID().String()), s.donor)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	req = s.as(testutil.NewRequest(s.T(), http.MethodGet, "/food-donations/not-a-uuid"), s.donor)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}

func (s *HandlerSuite) TestUpdateRejectsPriorityChange() {
	created := s.createDonation()
	body := s.body(s.now.Add(10 * time.Hour))
	body["priority"] = "Low"
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPut, "/food-donations/"+created.ID, body), s.donor)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *HandlerSuite) TestUpdate() {
	created := s.createDonation()
	body := s.body(s.now.Add(10 * time.Hour))
	body["title"] = "Fruit crates"
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPut, "/food-donations/"+created.ID, body), s.donor)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "title", "Fruit crates")
}

func (s *HandlerSuite) TestDeleteConflictWhileClaimed() {
	created := s.createDonation()
	id, err := domain.ParseDonationID(created.ID)
	s.Require().NoError(err)
	_, err = s.store.TransitionStatus(s.T().Context(), id, models.StatusAvailable, models.StatusClaimed, s.now)
	s.Require().NoError(err)

	req := s.as(testutil.NewRequest(s.T(), http.MethodDelete, "/food-donations/"+created.ID), s.donor)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
}

func (s *HandlerSuite) TestDelete() {
	created := s.createDonation()
	req := s.as(testutil.NewRequest(s.T(), http.MethodDelete, "/food-donations/"+created.ID), s.donor)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}
