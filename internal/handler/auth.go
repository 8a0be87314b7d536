package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fridgeio/internal/auth"
	"fridgeio/internal/authn"
	"fridgeio/internal/controller"
	"fridgeio/internal/favorites"
	"fridgeio/internal/middleware"
	"fridgeio/internal/store"
)

const (
	sessionTTL = 30 * 24 * time.Hour
	// loginTimeout bounds how long a request waits for the controller's
	// auth notification.
	loginTimeout = 10 * time.Second
)

type AuthHandler struct {
	registry  *controller.Registry
	provider  *authn.LocalProvider
	sessions  *store.SessionStore
	pushStore *store.PushStore
	favorites *favorites.Store
	logger    *slog.Logger
}

func NewAuthHandler(
	registry *controller.Registry,
	provider *authn.LocalProvider,
	sessions *store.SessionStore,
	pushStore *store.PushStore,
	favStore *favorites.Store,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		registry:  registry,
		provider:  provider,
		sessions:  sessions,
		pushStore: pushStore,
		favorites: favStore,
		logger:    logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authOutcome struct {
	success bool
	message string
}

// runAuth drives a controller through a login or signup attempt and waits
// for its auth notification.
func (h *AuthHandler) runAuth(c *controller.Controller, start func()) (authOutcome, bool) {
	results := make(chan authOutcome, 1)
	listener := &controller.FuncListener{
		Cat: controller.CategoryAuth,
		Auth: func(success bool, message string) {
			select {
			case results <- authOutcome{success, message}:
			default:
			}
		},
	}
	c.AddListener(listener)
	defer c.RemoveListener(listener)

	start()

	select {
	case outcome := <-results:
		return outcome, true
	case <-time.After(loginTimeout):
		return authOutcome{}, false
	}
}

func (h *AuthHandler) handleCredentials(w http.ResponseWriter, r *http.Request, signup bool) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	c := h.registry.NewController()

	outcome, ok := h.runAuth(c, func() {
		if signup {
			c.Signup(r.Context(), req.Email, req.Password)
		} else {
			c.Login(r.Context(), req.Email, req.Password)
		}
	})
	if !ok {
		c.Close()
		respondError(w, http.StatusGatewayTimeout, "Signing in took too long. Please try again.")
		return
	}
	if !outcome.success {
		c.Close()
		respondError(w, http.StatusUnauthorized, outcome.message)
		return
	}

	adopted := h.registry.Adopt(c)
	if adopted == nil {
		respondError(w, http.StatusInternalServerError, "Something went wrong signing you in. Please try again.")
		return
	}
	identity := adopted.Identity()

	sess, err := h.sessions.Create(identity, sessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong signing you in. Please try again.")
		return
	}

	http.SetCookie(w, sessionCookie(sess.Token, sessionTTL))

	status := http.StatusOK
	if signup {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]string{"identity": identity})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, false)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, true)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := auth.Identity(r.Context())
	if token := auth.SessionToken(r.Context()); token != "" {
		if err := h.sessions.Delete(token); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	// Tear the controller down once the last device signs out.
	if n, err := h.sessions.CountForIdentity(identity); err == nil && n == 0 {
		h.registry.Close(identity)
	}

	http.SetCookie(w, sessionCookie("", -time.Hour))
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

type resetRequest struct {
	Email string `json:"email"`
}

// ResetPassword always responds with the same message so callers cannot
// probe which addresses have accounts.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondError(w, http.StatusBadRequest, "Email is required.")
		return
	}

	h.provider.SendPasswordReset(req.Email)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "If an account exists for that address, a reset email is on its way.",
	})
}

type confirmResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.provider.ConfirmPasswordReset(req.Token, req.NewPassword); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// DeleteAccount removes the caller's documents, favourites, push
// subscriptions, credentials, and sessions.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity := auth.Identity(r.Context())

	c := h.registry.GetOrResume(identity)
	if err := c.DeleteAccount(); err != nil {
		h.logger.Error("delete account", "identity", identity, "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong deleting your account.")
		return
	}
	h.registry.Close(identity)

	if err := h.favorites.Delete(identity); err != nil {
		h.logger.Error("delete favourites", "error", err)
	}
	if err := h.pushStore.DeleteForIdentity(identity); err != nil {
		h.logger.Error("delete push subscriptions", "error", err)
	}
	if err := h.sessions.DeleteForIdentity(identity); err != nil {
		h.logger.Error("delete sessions", "error", err)
	}

	http.SetCookie(w, sessionCookie("", -time.Hour))
	respondJSON(w, http.StatusOK, map[string]string{"status": "account deleted"})
}

func sessionCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
