package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"numa/internal/fim"
	"numa/internal/ledger"
)

const (
	maxAudioBytes    = 10 << 20
	maxDocumentBytes = 10 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.store.CreateUser(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, ledger.ErrUserExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.issueToken(user.ID)
	if err != nil {
		s.log.Error("token signing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(s.tokenTTL.Seconds()),
	})
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	audio, mimeType, ok := readUpload(w, r, "audio", maxAudioBytes)
	if !ok {
		return
	}
	envelope := s.orch.HandleVoice(r.Context(), ownerFrom(r.Context()), audio, mimeType)
	writeJSON(w, http.StatusOK, envelope)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	envelope := s.orch.HandleText(r.Context(), ownerFrom(r.Context()), req.Message)
	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("id")
	document, mimeType, ok := readUpload(w, r, "document", maxDocumentBytes)
	if !ok {
		return
	}
	envelope, err := s.orch.VerifyWithDocument(r.Context(), ownerFrom(r.Context()), txID, document, mimeType)
	if err != nil {
		s.writeVerifyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleVerifyManual(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("id")
	tx, err := s.store.VerifyManual(r.Context(), txID, ownerFrom(r.Context()))
	if err != nil {
		s.writeVerifyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// writeVerifyError maps ledger errors onto status codes. A row owned by
// someone else answers exactly like a missing row.
func (s *Server) writeVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrNotOwner):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, ledger.ErrNotProvisional):
		writeError(w, http.StatusConflict, "transaction already verified")
	case errors.Is(err, ledger.ErrMissingMerchant):
		writeError(w, http.StatusUnprocessableEntity, "merchant required")
	case errors.Is(err, fim.ErrUnreadableDocument):
		writeError(w, http.StatusUnprocessableEntity, "document could not be read")
	default:
		s.log.Error("verification failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "verification failed")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs, err := s.store.ListByOwner(r.Context(), ownerFrom(r.Context()), filter)
	if err != nil {
		s.log.Error("list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list transactions")
		return
	}
	if txs == nil {
		txs = []*ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}
	summary, err := s.store.DailySummary(r.Context(), ownerFrom(r.Context()), day)
	if err != nil {
		s.log.Error("daily summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not compute summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func filterFromQuery(r *http.Request) (ledger.Filter, error) {
	var filter ledger.Filter
	q := r.URL.Query()

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, errors.New("invalid from date, expected YYYY-MM-DD")
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, errors.New("invalid to date, expected YYYY-MM-DD")
		}
		filter.To = t
	}
	filter.Category = q.Get("category")
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, ledger.TransactionStatus(strings.TrimSpace(part)))
		}
	}
	if raw := q.Get("type"); raw != "" {
		filter.Type = ledger.TransactionType(raw)
	}
	return filter, nil
}

// readUpload pulls a single multipart file field. It answers the request
// itself on failure and reports ok=false.
func readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing "+field+" file")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read "+field)
		return nil, "", false
	}
	return data, header.Header.Get("Content-Type"), true
}
