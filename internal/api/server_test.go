package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/batch"
	"github.com/JakeFAU/prospector/internal/prospect"
)

type fakeStore struct {
	counts     prospect.StatusCounts
	pending    []prospect.PendingContact
	countErr   error
	pendingErr error
	pingErr    error
	limits     []int
}

func (f *fakeStore) Counts(context.Context) (prospect.StatusCounts, error) {
	return f.counts, f.countErr
}

func (f *fakeStore) FetchPending(_ context.Context, limit int) ([]prospect.PendingContact, error) {
	f.limits = append(f.limits, limit)
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndRequestID(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeStore{}, Config{}, zap.NewNop())
	rec := do(t, s, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReflectsStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	s := NewServer(store, Config{}, nil)
	require.Equal(t, http.StatusOK, do(t, s, "/readyz").Code)

	store.pingErr = errors.New("database is locked")
	rec := do(t, s, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store unavailable")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeStore{}, Config{}, nil)
	_ = do(t, s, "/healthz")
	rec := do(t, s, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestStatsIncludesNewestBatches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		require.NoError(t, batch.Write(filepath.Join(dir, batch.FileName(base.Add(time.Duration(i)*time.Hour))), nil))
	}

	store := &fakeStore{counts: prospect.StatusCounts{Companies: 2, Contacts: 5, Pending: 3, Sent: 1, Failed: 1}}
	s := NewServer(store, Config{ExportDir: dir}, nil)
	rec := do(t, s, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Companies int `json:"companies"`
		Contacts  int `json:"contacts"`
		Pending   int `json:"pending"`
		Processed int `json:"processed"`
		Batches   []struct {
			Path string `json:"path"`
		} `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Companies)
	assert.Equal(t, 5, body.Contacts)
	assert.Equal(t, 3, body.Pending)
	assert.Equal(t, 2, body.Processed)
	assert.Len(t, body.Batches, 3)
}

func TestStatsStoreError(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeStore{countErr: errors.New("boom")}, Config{}, nil)
	rec := do(t, s, "/v1/stats")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPendingPreview(t *testing.T) {
	t.Parallel()

	conf := 90
	store := &fakeStore{pending: []prospect.PendingContact{
		{ID: 1, Email: "ceo@acme.io", Name: "Ada Lovelace", Type: "personal", Confidence: &conf,
			Priority: prospect.PriorityDecisionMaker, Domain: "acme.io", Organization: "Acme", Category: "engineering"},
		{ID: 2, Email: "jobs@acme.io", Type: prospect.GenericContactType, Priority: prospect.PriorityGeneric,
			Domain: "acme.io", Organization: "Acme"},
	}}
	s := NewServer(store, Config{}, nil)

	rec := do(t, s, "/v1/contacts/pending?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Limit    int `json:"limit"`
		Contacts []struct {
			ID       int64  `json:"id"`
			Email    string `json:"email"`
			Priority string `json:"priority"`
		} `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Limit)
	require.Len(t, body.Contacts, 1)
	assert.Equal(t, "ceo@acme.io", body.Contacts[0].Email)
	assert.Equal(t, prospect.PriorityDecisionMaker.String(), body.Contacts[0].Priority)

	require.Equal(t, http.StatusOK, do(t, s, "/v1/contacts/pending").Code)
	require.Equal(t, http.StatusOK, do(t, s, "/v1/contacts/pending?limit=5000").Code)
	assert.Equal(t, []int{1, defaultPreviewLimit, maxPreviewLimit}, store.limits)
}

func TestPendingRejectsBadLimit(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	s := NewServer(store, Config{}, nil)
	for _, q := range []string{"abc", "0", "-3"} {
		rec := do(t, s, "/v1/contacts/pending?limit="+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Empty(t, store.limits)
}

func TestPendingStoreError(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeStore{pendingErr: errors.New("boom")}, Config{}, nil)
	rec := do(t, s, "/v1/contacts/pending")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
