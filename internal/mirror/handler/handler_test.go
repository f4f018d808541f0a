package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"foodlink/internal/mirror"
	"foodlink/pkg/domain"
	"foodlink/pkg/testutil"
)

type stubReconciler struct {
	report mirror.Report
	err    error
	calls  int
}

func (s *stubReconciler) Reconcile(context.Context) (mirror.Report, error) {
	s.calls++
	return s.report, s.err
}

func router(rec Reconciler) http.Handler {
	r := chi.NewRouter()
	New(rec, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestReconcileRequiresAdmin(t *testing.T) {
	rec := &stubReconciler{}
	req := testutil.WithActor(testutil.NewRequest(t, http.MethodPost, "/admin/reconcile"), testutil.NewActor(domain.RoleDonor))
	rr := testutil.DoRequest(router(rec), req)
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	assert.Zero(t, rec.calls)
}

func TestReconcileReturnsReport(t *testing.T) {
	rec := &stubReconciler{report: mirror.Report{AttributeCount: 3, RecordCount: 2, Orphans: 1, Deleted: 1}}
	req := testutil.WithActor(testutil.NewRequest(t, http.MethodPost, "/admin/reconcile"), testutil.NewActor(domain.RoleAdmin))
	rr := testutil.DoRequest(router(rec), req)
	testutil.AssertStatusOK(t, rr)
	got := testutil.UnmarshalResponse[mirror.Report](t, rr)
	assert.Equal(t, rec.report, *got)
}

func TestReconcileListingFailureIsUpstream(t *testing.T) {
	rec := &stubReconciler{err: errors.New("sparql down")}
	req := testutil.WithActor(testutil.NewRequest(t, http.MethodPost, "/admin/reconcile"), testutil.NewActor(domain.RoleAdmin))
	rr := testutil.DoRequest(router(rec), req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadGateway, "upstream_failure")
}
