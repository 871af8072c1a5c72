package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lifelog/apiserver/internal/auth"
	"github.com/lifelog/apiserver/internal/services"
)

// TokenVerifier resolves a bearer token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// AuthHandler serves registration, login and profile endpoints.
type AuthHandler struct {
	authService *services.AuthService
	errs        errorWriter
}

func NewAuthHandler(authService *services.AuthService, debug bool) *AuthHandler {
	return &AuthHandler{authService: authService, errs: errorWriter{debug: debug}}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, authMiddleware func(http.Handler) http.Handler, debug bool) {
	handler := NewAuthHandler(authService, debug)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(authMiddleware).Get("/profile", handler.Profile)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity on the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "access token required")
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.authService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "registration successful", result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "login successful", result)
}

// Profile returns the stored account of the caller.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	user, err := h.authService.Profile(r.Context(), identity)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", user)
}

// CheckAuth echoes the identity carried by a valid token.
func CheckAuth(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}
	writeJSON(w, http.StatusOK, CheckAuthResponse{Success: true, User: identity})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CheckAuthResponse struct {
	Success bool          `json:"success"`
	User    auth.Identity `json:"user"`
}
