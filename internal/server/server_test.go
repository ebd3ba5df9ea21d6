package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numa/internal/ledger"
	"numa/internal/orchestrator"
)

type fakeOrch struct {
	lastOwner string
	lastText  string
	envelope  orchestrator.Envelope
	verifyErr error
}

func (f *fakeOrch) HandleVoice(ctx context.Context, ownerID string, audio []byte, mime string) orchestrator.Envelope {
	f.lastOwner = ownerID
	return f.envelope
}

func (f *fakeOrch) HandleText(ctx context.Context, ownerID, text string) orchestrator.Envelope {
	f.lastOwner = ownerID
	f.lastText = text
	return f.envelope
}

func (f *fakeOrch) VerifyWithDocument(ctx context.Context, ownerID, txID string, doc []byte, mime string) (orchestrator.Envelope, error) {
	f.lastOwner = ownerID
	if f.verifyErr != nil {
		return orchestrator.Envelope{}, f.verifyErr
	}
	return f.envelope, nil
}

func newTestServer(t *testing.T) (*Server, *ledger.Store, *fakeOrch) {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	orch := &fakeOrch{envelope: orchestrator.Envelope{Type: orchestrator.EnvelopeChat, Message: "ok"}}
	srv := New(Config{
		Addr:   ":0",
		Secret: "test-secret",
		Store:  store,
		Orch:   orch,
	})
	return srv, store, orch
}

func register(t *testing.T, srv *Server, email string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"name":"Test","password":"secret-password"}`, email)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString(body))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func token(t *testing.T, srv *Server, email string) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"secret-password"}`, email)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/token", bytes.NewBufferString(body))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestRegisterAndToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	register(t, srv, "ana@example.com")
	token(t, srv, "ana@example.com")

	// Duplicate registration conflicts.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/register",
		bytes.NewBufferString(`{"email":"ana@example.com","name":"X","password":"secret-password"}`))
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Wrong password is rejected.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/auth/token",
		bytes.NewBufferString(`{"email":"ana@example.com","password":"wrong-password"}`))
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/chat", bytes.NewBufferString(`{"message":"hola"}`))
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/chat", bytes.NewBufferString(`{"message":"hola"}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatRoutesOwnerFromToken(t *testing.T) {
	srv, store, orch := newTestServer(t)
	register(t, srv, "ana@example.com")
	tok := token(t, srv, "ana@example.com")

	user, err := store.UserByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/chat", bytes.NewBufferString(`{"message":"gasté 150 en tacos"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, orch.lastOwner)
	assert.Equal(t, "gasté 150 en tacos", orch.lastText)
}

func TestVoiceUpload(t *testing.T) {
	srv, _, orch := newTestServer(t)
	register(t, srv, "ana@example.com")
	tok := token(t, srv, "ana@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "note.ogg")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-audio"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, orch.lastOwner)
}

func TestVerifyManualCrossTenantLooksLikeNotFound(t *testing.T) {
	srv, store, _ := newTestServer(t)
	register(t, srv, "ana@example.com")
	register(t, srv, "luis@example.com")
	luisTok := token(t, srv, "luis@example.com")

	ana, err := store.UserByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	tx, err := store.CreateProvisional(context.Background(), ana.ID, ledger.CreateInput{
		Amount: 100, Concept: "tacos", Merchant: "Taquería",
	})
	require.NoError(t, err)

	// Someone else's transaction and a nonexistent one answer identically.
	for _, id := range []string{tx.ID, "no-such-id"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/transactions/"+id+"/verify-manual", nil)
		req.Header.Set("Authorization", "Bearer "+luisTok)
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"transaction not found"}`, rec.Body.String())
	}
}

func TestVerifyManualHappyPath(t *testing.T) {
	srv, store, _ := newTestServer(t)
	register(t, srv, "ana@example.com")
	tok := token(t, srv, "ana@example.com")

	ana, err := store.UserByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	tx, err := store.CreateProvisional(context.Background(), ana.ID, ledger.CreateInput{
		Amount: 100, Concept: "tacos", Merchant: "Taquería",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/transactions/"+tx.ID+"/verify-manual", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got ledger.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ledger.StatusVerifiedManual, got.Status)

	// A second verify conflicts.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/transactions/"+tx.ID+"/verify-manual", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListTransactions(t *testing.T) {
	srv, store, _ := newTestServer(t)
	register(t, srv, "ana@example.com")
	tok := token(t, srv, "ana@example.com")

	ana, err := store.UserByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	_, err = store.CreateProvisional(context.Background(), ana.ID, ledger.CreateInput{
		Amount: 100, Concept: "tacos",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/transactions?status=provisional", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Transactions []*ledger.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "tacos", resp.Transactions[0].Concept)
}

func TestDailySummaryEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	register(t, srv, "ana@example.com")
	tok := token(t, srv, "ana@example.com")

	ana, err := store.UserByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	_, err = store.CreateProvisional(context.Background(), ana.ID, ledger.CreateInput{
		Amount: 80, Concept: "café",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/summary/daily", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var day ledger.DaySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	assert.Equal(t, 80.0, day.Provisional.Expense.Total)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/summary/daily?date=not-a-date", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
