package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/api"
)

type Handler struct {
	service    *Service
	cookies    *CookieJar
	middleware *AuthMiddleware
	log        *zap.Logger
}

func NewHandler(service *Service, cookies *CookieJar, middleware *AuthMiddleware, log *zap.Logger) *Handler {
	return &Handler{
		service:    service,
		cookies:    cookies,
		middleware: middleware,
		log:        log,
	}
}

// RegisterRoutes mounts the JSON API on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(api.UsersSignup, h.Signup).Methods(http.MethodPost)
	r.HandleFunc(api.UsersLogin, h.Login).Methods(http.MethodPost)
	r.HandleFunc(api.UsersLogout, h.Logout).Methods(http.MethodGet)
	r.HandleFunc(api.UsersMe, h.Me).Methods(http.MethodGet)
	r.HandleFunc(api.UsersVerifyEmail, h.VerifyEmail).Methods(http.MethodPost)
	r.Handle(api.UsersRequestVerification, h.middleware.RequireSession(http.HandlerFunc(h.RequestVerification))).Methods(http.MethodPost)
	r.HandleFunc(api.UsersForgotPassword, h.ForgotPassword).Methods(http.MethodPost)
	r.HandleFunc(api.UsersResetPassword, h.ResetPassword).Methods(http.MethodPost)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := DecodeRequest(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info("handling signup request", zap.String("username", req.UserName))

	account, err := h.service.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"success": true,
		"user":    account,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := DecodeRequest(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.Set(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"success": true,
		"user":    result.User,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Logout successful",
		"success": true,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.WhoAmI(r.Context(), h.cookies.Token(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User data retrieved successfully",
		"data":    account,
	})
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := DecodeRequest(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	alreadyVerified, err := h.service.VerifyEmail(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message := "Email verified successfully"
	if alreadyVerified {
		message = "Email is already verified"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"success": true,
	})
}

func (h *Handler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	claims, err := GetClaimsFromContext(r.Context())
	if err != nil {
		h.writeError(w, r, ErrUnauthorized)
		return
	}

	if err := h.service.RequestVerification(r.Context(), claims.Subject); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "Verification email sent",
		"success": true,
	})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := DecodeRequest(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "Password reset email sent",
		"success": true,
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := DecodeRequest(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Password reset successful",
		"success": true,
	})
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrUserExists):
		writeJSONError(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, ErrInvalidOrExpiredToken):
		writeJSONError(w, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrInvalidPassword):
		writeJSONError(w, http.StatusUnauthorized, "Invalid password")
	case errors.Is(err, ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "Authentication required")
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeJSONError is a helper that writes an error response in JSON.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
