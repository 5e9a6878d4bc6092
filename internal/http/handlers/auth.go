package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tastykitchen/server/internal/auth"
	"github.com/tastykitchen/server/internal/middleware"
	"github.com/tastykitchen/server/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authService: authService, logger: logger}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type requestOTPRequest struct {
	Email string `json:"email"`
}

type requestPhoneOTPRequest struct {
	Phone string `json:"phone"`
}

type verifyOTPRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Password string `json:"password,omitempty"`
}

type verifyPhoneOTPRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

type googleRequest struct {
	IDToken string `json:"idToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// otpResponse carries the code and preview link only outside production
type otpResponse struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	Role  model.Role `json:"role"`
}

type accountResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Role          model.Role `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	PhoneVerified bool       `json:"phoneVerified"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func newAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Phone:         a.Phone,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
		PhoneVerified: a.PhoneVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	if _, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}); err != nil {
		h.respondWithServiceError(w, r, "register", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, messageResponse{Message: "Registered. Please verify your email."})
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.authService.Login(r.Context(), auth.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.respondWithServiceError(w, r, "login", err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{Token: session.Token, Role: session.Role})
}

// HandleRequestOTP handles POST /api/auth/request-otp
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if !decode(w, r, &req) {
		return
	}

	issued, err := h.authService.RequestEmailOTP(r.Context(), req.Email)
	if err != nil {
		h.respondWithServiceError(w, r, "request email otp", err)
		return
	}

	respondWithJSON(w, http.StatusOK, otpResponse{Message: "OTP sent", Code: issued.Code, PreviewURL: issued.PreviewURL})
}

// HandleVerifyOTP handles POST /api/auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.authService.VerifyEmailOTP(r.Context(), auth.VerifyEmailInput{
		Email:    req.Email,
		OTP:      req.OTP,
		Password: req.Password,
	})
	if err != nil {
		h.respondWithServiceError(w, r, "verify email otp", err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{Token: session.Token, Role: session.Role})
}

// HandleRequestPhoneOTP handles POST /api/auth/request-otp-phone
func (h *AuthHandler) HandleRequestPhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req requestPhoneOTPRequest
	if !decode(w, r, &req) {
		return
	}

	issued, err := h.authService.RequestPhoneOTP(r.Context(), req.Phone)
	if err != nil {
		h.respondWithServiceError(w, r, "request phone otp", err)
		return
	}

	respondWithJSON(w, http.StatusOK, otpResponse{Message: "OTP sent to phone", Code: issued.Code})
}

// HandleVerifyPhoneOTP handles POST /api/auth/verify-otp-phone
func (h *AuthHandler) HandleVerifyPhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyPhoneOTPRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.authService.VerifyPhoneOTP(r.Context(), auth.VerifyPhoneInput{Phone: req.Phone, OTP: req.OTP})
	if err != nil {
		h.respondWithServiceError(w, r, "verify phone otp", err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{Token: session.Token, Role: session.Role})
}

// HandleGoogle handles POST /api/auth/google
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.authService.SignInWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		h.respondWithServiceError(w, r, "google sign-in", err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{Token: session.Token, Role: session.Role})
}

// HandleMe handles GET /me (protected). Returns the authenticated account.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.GetAccount(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Please authenticate")
		return
	}
	respondWithJSON(w, http.StatusOK, newAccountResponse(account))
}

// HandleFindAccount handles GET /api/admin/accounts?email=&phone= (admin only)
func (h *AuthHandler) HandleFindAccount(w http.ResponseWriter, r *http.Request) {
	q := lookupQuery(r)
	account, err := h.authService.FindAccount(r.Context(), q.Get("email"), q.Get("phone"))
	if err != nil {
		h.respondWithServiceError(w, r, "find account", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]accountResponse{"account": newAccountResponse(account)})
}

// respondWithServiceError maps service errors to a status and a stable message.
// Unknown errors are logged and reported as a generic server error.
func (h *AuthHandler) respondWithServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, auth.ErrAccountExists):
		respondWithError(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusBadRequest, "Invalid credentials")
	case errors.Is(err, auth.ErrAccountNotVerified):
		respondWithError(w, http.StatusForbidden, "Account not verified")
	case errors.Is(err, auth.ErrNoPasswordSet):
		respondWithError(w, http.StatusBadRequest, "Password not set for this account")
	case errors.Is(err, auth.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, auth.ErrOtpExpired), errors.Is(err, auth.ErrOtpNotRequested):
		respondWithError(w, http.StatusBadRequest, "OTP expired or not requested")
	case errors.Is(err, auth.ErrOtpInvalid):
		respondWithError(w, http.StatusBadRequest, "Invalid OTP")
	case errors.Is(err, auth.ErrInvalidFederatedToken):
		respondWithError(w, http.StatusBadRequest, "Invalid Google token")
	case errors.Is(err, auth.ErrFederatedAuthUnavailable):
		respondWithError(w, http.StatusInternalServerError, "Google auth not configured")
	default:
		h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Server error")
	}
}

// lookupQuery parses the query keeping a literal '+' so ?phone=+15550001111 matches
// the stored E.164 number. Emails and phones never contain spaces.
func lookupQuery(r *http.Request) url.Values {
	q, err := url.ParseQuery(strings.ReplaceAll(r.URL.RawQuery, "+", "%2B"))
	if err != nil {
		return r.URL.Query()
	}
	return q
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func respondWithJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}
