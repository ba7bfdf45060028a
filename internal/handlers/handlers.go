package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"timebill/internal/auth"
	"timebill/internal/models"
	"timebill/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
)

// Config holds the invoicing defaults and cookie policy. TaxRate left unset
// means the standard 10%; a configured zero means tax-free invoicing.
type Config struct {
	SecureCookie bool
	Currency     string
	PaymentTerms string
	TaxRate      decimal.NullDecimal
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db  *storage.DB
	log *slog.Logger
	cfg Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, log *slog.Logger, cfg Config) *Handlers {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.PaymentTerms == "" {
		cfg.PaymentTerms = "Net 30"
	}
	return &Handlers{db: db, log: log, cfg: cfg}
}

// Routes returns the API router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)

		r.Get("/clients", h.ListClients)
		r.Post("/clients", h.CreateClient)
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)

		r.Get("/entries", h.ListEntries)
		r.Post("/entries", h.CreateEntry)
		r.Put("/entries/{id}", h.UpdateEntry)
		r.Post("/entries/{id}/submit", h.SubmitEntry)

		r.Get("/invoices", h.ListInvoices)
		r.Get("/invoices/eligible", h.EligibleEntries)
		r.Post("/invoices/preview", h.PreviewInvoice)
		r.Post("/invoices", h.CreateInvoice)
		r.Get("/invoices/{id}", h.GetInvoice)

		r.Get("/reports/time", h.TimeReport)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireManager)
			r.Get("/approvals", h.ListApprovals)
			r.Post("/entries/{id}/approve", h.ApproveEntry)
			r.Post("/entries/{id}/reject", h.RejectEntry)
		})
	})

	return r
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			h.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		sessionInfo, err := h.db.ValidateSessionWithInfo(cookie.Value)
		if err != nil {
			// Invalid or expired session, clear the cookie
			h.clearSessionCookie(w)
			h.respondError(w, http.StatusUnauthorized, "session expired")
			return
		}

		// Rolling session: renew if past halfway point
		// This keeps active users logged in while still expiring inactive sessions
		now := time.Now()
		timeUntilExpiry := sessionInfo.ExpiresAt.Sub(now)
		halfSessionDuration := SessionDuration / 2

		if timeUntilExpiry < halfSessionDuration {
			// Session is in the second half of its lifetime, renew it
			newExpiresAt := now.Add(SessionDuration)
			if err := h.db.RenewSession(cookie.Value, newExpiresAt); err == nil {
				// Update the cookie expiration too
				h.setSessionCookie(w, cookie.Value)
			}
			// If renewal fails, just continue with the current session
		}

		// Add user to context
		ctx := context.WithValue(r.Context(), UserContextKey, sessionInfo.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireManager restricts the wrapped handlers to manager accounts. It must
// run inside AuthMiddleware.
func (h *Handlers) RequireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r)
		if user == nil || user.Role != models.RoleManager {
			h.respondError(w, http.StatusForbidden, "manager role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user and starts a session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.db.GetUserByUsername(username)
	if err != nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		h.respondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.log.Error("failed to generate session token", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	expiresAt := time.Now().Add(SessionDuration)
	if err := h.db.CreateSession(token, user.ID, expiresAt); err != nil {
		h.log.Error("failed to create session", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.setSessionCookie(w, token)
	h.respondJSON(w, http.StatusOK, user)
}

// Logout ends the current session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(cookie.Value); err != nil {
			h.log.Error("failed to delete session", "error", err)
		}
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, GetUserFromContext(r))
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, errorResponse{Error: msg})
}
