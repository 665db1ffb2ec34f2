package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/internal/audiostore"
	"github.com/tahcohcat/vocalize-web/internal/auth"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

// SessionHandler serves the media session endpoints.
type SessionHandler struct {
	sessions *SessionManager
	audio    *audiostore.Store
	logger   *logger.Log
}

func NewSessionHandler(sessions *SessionManager, audio *audiostore.Store) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		audio:    audio,
		logger:   logger.New().Named("api"),
	}
}

type createSessionRequest struct {
	DictationSupported bool `json:"dictationSupported"`
}

type sessionResponse struct {
	ID       string                `json:"id"`
	Socket   string                `json:"socket"`
	Snapshot mediasession.Snapshot `json:"snapshot"`
}

func newSessionResponse(s *MediaSession) sessionResponse {
	return sessionResponse{
		ID:       s.ID,
		Socket:   "/ws/" + s.ID,
		Snapshot: s.Controller().Snapshot(),
	}
}

// POST /api/v1/sessions - Open a media session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, mediasession.ValidationError("invalid request body"))
			return
		}
	}

	session, err := h.sessions.Create(user.UserID, req.DictationSupported)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

// GET /api/v1/sessions/{id} - Current snapshot
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// GET /api/v1/sessions/{id}/voices - Catalog last fetched by the session
func (h *SessionHandler) SessionVoices(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"voices": session.Controller().Voices()})
}

// POST /api/v1/sessions/{id}/intents - Apply one intent
func (h *SessionHandler) DispatchIntent(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var intent mediasession.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, mediasession.ValidationError("invalid request body"))
		return
	}

	if err := session.Controller().Dispatch(r.Context(), intent); err != nil {
		h.logger.Debug("intent rejected",
			zap.String("session_id", session.ID),
			zap.String("intent", string(intent.Name)),
			zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshot": session.Controller().Snapshot()})
}

// DELETE /api/v1/sessions/{id} - Tear a session down
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Remove(user.UserID, mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, err)
			return
		}
		h.logger.WithError(err).Warn("session teardown reported an error")
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/sessions/{id}/audio/{resource} - Serve loaded audio
func (h *SessionHandler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	res, data, err := h.audio.Get(session.ID, mux.Vars(r)["resource"])
	if err != nil {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", res.MIMEType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "", res.CreatedAt, bytes.NewReader(data))
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*MediaSession, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	session, err := h.sessions.Get(user.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/voices", h.SessionVoices).Methods("GET")
	r.HandleFunc("/sessions/{id}/intents", h.DispatchIntent).Methods("POST")
	r.HandleFunc("/sessions/{id}/audio/{resource}", h.ServeAudio).Methods("GET")
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error": mediasession.ErrorInfo{Kind: "unauthenticated", Message: "Authentication required"},
		})
	}
	return user, ok
}

// statusFor maps a classified error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, mediasession.ErrClosed):
		return http.StatusConflict
	}
	switch mediasession.KindOf(err) {
	case mediasession.KindValidation:
		return http.StatusBadRequest
	case mediasession.KindBusy, mediasession.KindInvalidState:
		return http.StatusConflict
	case mediasession.KindUnsupported:
		return http.StatusUnprocessableEntity
	case mediasession.KindService, mediasession.KindDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func describe(err error) mediasession.ErrorInfo {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return mediasession.ErrorInfo{Kind: "not_found", Message: err.Error()}
	case errors.Is(err, ErrTooManySessions):
		return mediasession.ErrorInfo{Kind: mediasession.KindBusy, Message: err.Error()}
	default:
		return mediasession.Describe(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.New().Named("api").WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]interface{}{"error": describe(err)})
}
