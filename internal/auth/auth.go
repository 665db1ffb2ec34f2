package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/logger"
)

const (
	keyUserID      = "user_id"
	keyEmail       = "email"
	keyDisplayName = "display_name"
	keyProvider    = "provider"
)

type contextKey struct{}

// Handler serves the sign-in endpoints and guards the rest of the API with
// a cookie session.
type Handler struct {
	provider    Provider
	store       sessions.Store
	sessionName string
	logger      *logger.Log
}

func NewHandler(provider Provider, cfg config.AuthConfig) *Handler {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return NewHandlerWithStore(provider, store, cfg.SessionName)
}

func NewHandlerWithStore(provider Provider, store sessions.Store, sessionName string) *Handler {
	if sessionName == "" {
		sessionName = "vocalize-session"
	}
	return &Handler{
		provider:    provider,
		store:       store,
		sessionName: sessionName,
		logger:      logger.New().Named("auth"),
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /auth/signin
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.provider.SignIn, http.StatusOK)
}

// POST /auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.provider.SignUp, http.StatusCreated)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (Session, error), status int) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", "Invalid request body")
		return
	}

	user, err := op(r.Context(), req.Email, req.Password)
	if err != nil {
		code := CodeOf(err)
		h.logger.Debug("authentication rejected", zap.String("code", string(code)))
		writeError(w, code.HTTPStatus(), string(code), code.Message())
		return
	}

	if err := h.saveSession(w, r, user); err != nil {
		h.logger.WithError(err).Error("failed to save session")
		writeError(w, http.StatusInternalServerError, string(CodeUnknown), CodeUnknown.Message())
		return
	}

	h.logger.Info("user signed in", zap.String("user_id", user.UserID), zap.String("provider", user.Provider))
	writeJSON(w, status, map[string]interface{}{"user": user})
}

// POST /auth/signout
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	session, _ := h.store.Get(r, h.sessionName)
	session.Values = map[interface{}]interface{}{}
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.logger.WithError(err).Warn("failed to clear session")
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// Middleware rejects requests without a signed-in session and makes the
// user available through UserFromContext.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/signin", h.SignIn).Methods("POST")
	r.HandleFunc("/auth/signup", h.SignUp).Methods("POST")
	r.HandleFunc("/auth/signout", h.SignOut).Methods("POST")
	r.HandleFunc("/auth/me", h.Me).Methods("GET")
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, user Session) error {
	session, _ := h.store.Get(r, h.sessionName)
	session.Values[keyUserID] = user.UserID
	session.Values[keyEmail] = user.Email
	session.Values[keyDisplayName] = user.DisplayName
	session.Values[keyProvider] = user.Provider
	return session.Save(r, w)
}

func (h *Handler) currentUser(r *http.Request) (Session, bool) {
	session, err := h.store.Get(r, h.sessionName)
	if err != nil {
		return Session{}, false
	}
	id, _ := session.Values[keyUserID].(string)
	if id == "" {
		return Session{}, false
	}
	email, _ := session.Values[keyEmail].(string)
	name, _ := session.Values[keyDisplayName].(string)
	provider, _ := session.Values[keyProvider].(string)
	return Session{UserID: id, Email: email, DisplayName: name, Provider: provider}, true
}

func WithUser(ctx context.Context, user Session) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func UserFromContext(ctx context.Context) (Session, bool) {
	user, ok := ctx.Value(contextKey{}).(Session)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}
