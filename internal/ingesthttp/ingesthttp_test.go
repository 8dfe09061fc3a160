package ingesthttp

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpphooks/ingestcore/internal/model"
	"github.com/wpphooks/ingestcore/internal/rawstore"
)

type fakeStore struct {
	inserted     bool
	insertErr    error
	lastInput    rawstore.InsertRawEventInput
	insertCalled int
}

func (f *fakeStore) InsertRawEvent(ctx context.Context, input rawstore.InsertRawEventInput) (bool, error) {
	f.insertCalled++
	f.lastInput = input
	return f.inserted, f.insertErr
}

func (f *fakeStore) LockNextBatch(ctx context.Context, tx *sql.Tx, batchSize int) ([]model.RawEvent, error) {
	return nil, nil
}
func (f *fakeStore) MarkProcessed(ctx context.Context, tx *sql.Tx, id int64, lastError *string) error {
	return nil
}
func (f *fakeStore) MarkFailedAttempt(ctx context.Context, tx *sql.Tx, id int64, attempts int, lastError string, finalize bool) error {
	return nil
}

func newRouter(store rawstore.Store, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(store, func(string) string { return secret }, func(p string) string { return "X-" + strings.ToUpper(p) + "-SECRET" })
	h.Register(r)
	return r
}

func TestHealth(t *testing.T) {
	r := newRouter(&fakeStore{}, "shh")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestIngest_RejectsBadSecret(t *testing.T) {
	r := newRouter(&fakeStore{inserted: true}, "correct-secret")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gupshup/app1/events", strings.NewReader(`{}`))
	req.Header.Set("X-GUPSHUP-SECRET", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngest_AcceptsAndDedupes(t *testing.T) {
	store := &fakeStore{inserted: true}
	r := newRouter(store, "correct-secret")
	body := `{"statuses":[{"id":"gs-1","status":"delivered","timestamp":"1739112000"}],"eventId":"ev-42"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gupshup/app1/events", strings.NewReader(body))
	req.Header.Set("X-GUPSHUP-SECRET", "correct-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, 1, store.insertCalled)
	assert.Len(t, store.lastInput.DedupeKey, 64)
}

func TestIngest_DuplicateStillReturnsOK(t *testing.T) {
	store := &fakeStore{inserted: false}
	r := newRouter(store, "correct-secret")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gupshup/app1/events", strings.NewReader(`{"eventId":"ev-42"}`))
	req.Header.Set("X-GUPSHUP-SECRET", "correct-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestIngest_EmptyBody(t *testing.T) {
	store := &fakeStore{inserted: true}
	r := newRouter(store, "correct-secret")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gupshup/app1/events", strings.NewReader(``))
	req.Header.Set("X-GUPSHUP-SECRET", "correct-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.KindUnknown, store.lastInput.EventKind)
}
