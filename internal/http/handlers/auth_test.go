package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastykitchen/server/internal/auth"
	"github.com/tastykitchen/server/internal/mailer"
	"github.com/tastykitchen/server/internal/repo"
)

func newTestHandler(t *testing.T, opts ...auth.Option) (*AuthHandler, *mailer.DevMailer) {
	t.Helper()
	passwords, err := auth.NewPasswords(auth.SchemeBcrypt)
	require.NoError(t, err)
	outbox := mailer.NewDevMailer("http://localhost:5000", nil)
	svc := auth.NewAuthService(repo.NewMemoryAccountRepo(), passwords, auth.NewJWTService("handler-secret"),
		append([]auth.Option{auth.WithMailer(outbox)}, opts...)...)
	return NewAuthHandler(svc, nil), outbox
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body["error"]
}

func TestHandleRegister(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := post(h.HandleRegister, `{"name":"Priya","email":"priya@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Registered. Please verify your email."}`, rec.Body.String())

	rec = post(h.HandleRegister, `{"name":"Priya","email":"PRIYA@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", errorBody(t, rec))

	rec = post(h.HandleRegister, `{"name":"Priya","email":"priya@example.com","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at least 6 characters", errorBody(t, rec))

	rec = post(h.HandleRegister, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", errorBody(t, rec))
}

func TestHandleLogin_Errors(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := post(h.HandleLogin, `{"email":"ghost@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", errorBody(t, rec))

	post(h.HandleRegister, `{"name":"A","email":"a@example.com","password":"secret1"}`)
	rec = post(h.HandleLogin, `{"email":"a@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Account not verified", errorBody(t, rec))
}

func TestHandleOTPFlow(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := post(h.HandleRequestOTP, `{"email":"a@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var issued otpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, "OTP sent", issued.Message)
	require.Len(t, issued.Code, 6)
	assert.True(t, strings.HasPrefix(issued.PreviewURL, "http://localhost:5000/api/dev/mail/"))

	wrong := "000000"
	if issued.Code == wrong {
		wrong = "999999"
	}
	rec = post(h.HandleVerifyOTP, fmt.Sprintf(`{"email":"a@example.com","otp":%q}`, wrong))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OTP", errorBody(t, rec))

	rec = post(h.HandleVerifyOTP, fmt.Sprintf(`{"email":"a@example.com","otp":%q,"password":"secret1"}`, issued.Code))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "user", string(session.Role))

	rec = post(h.HandleVerifyOTP, fmt.Sprintf(`{"email":"a@example.com","otp":%q}`, issued.Code))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OTP expired or not requested", errorBody(t, rec))

	rec = post(h.HandleVerifyOTP, `{"email":"ghost@example.com","otp":"123456"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", errorBody(t, rec))

	rec = post(h.HandleLogin, `{"email":"a@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePhoneOTP_Production(t *testing.T) {
	h, _ := newTestHandler(t, auth.WithProduction(true))

	rec := post(h.HandleRequestPhoneOTP, `{"phone":"+15551234"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"OTP sent to phone"}`, rec.Body.String())

	rec = post(h.HandleVerifyPhoneOTP, `{"phone":"+15551234","otp":"12345"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "otp must be 6 digits", errorBody(t, rec))
}

func TestHandleGoogle_NotConfigured(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := post(h.HandleGoogle, `{"idToken":"abc"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Google auth not configured", errorBody(t, rec))

	rec = post(h.HandleGoogle, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverlongPasswordIsRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	long := strings.Repeat("p", 80)

	rec := post(h.HandleRegister, fmt.Sprintf(`{"name":"A","email":"a@example.com","password":%q}`, long))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at most 72 bytes", errorBody(t, rec))

	rec = post(h.HandleRequestOTP, `{"email":"a@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var issued otpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	rec = post(h.HandleVerifyOTP, fmt.Sprintf(`{"email":"a@example.com","otp":%q,"password":%q}`, issued.Code, long))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at most 72 bytes", errorBody(t, rec))

	// the code was not spent by the rejected request
	rec = post(h.HandleVerifyOTP, fmt.Sprintf(`{"email":"a@example.com","otp":%q,"password":"secret1"}`, issued.Code))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRespondWithServiceError(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []struct {
		err     error
		status  int
		message string
	}{
		{&auth.ValidationError{Field: "email", Message: "invalid email"}, http.StatusBadRequest, "invalid email"},
		{auth.ErrAccountExists, http.StatusBadRequest, "User already exists"},
		{auth.ErrInvalidCredentials, http.StatusBadRequest, "Invalid credentials"},
		{auth.ErrAccountNotVerified, http.StatusForbidden, "Account not verified"},
		{auth.ErrNoPasswordSet, http.StatusBadRequest, "Password not set for this account"},
		{auth.ErrAccountNotFound, http.StatusNotFound, "User not found"},
		{auth.ErrOtpExpired, http.StatusBadRequest, "OTP expired or not requested"},
		{auth.ErrOtpNotRequested, http.StatusBadRequest, "OTP expired or not requested"},
		{auth.ErrOtpInvalid, http.StatusBadRequest, "Invalid OTP"},
		{fmt.Errorf("%w: bad aud", auth.ErrInvalidFederatedToken), http.StatusBadRequest, "Invalid Google token"},
		{auth.ErrFederatedAuthUnavailable, http.StatusInternalServerError, "Google auth not configured"},
		{errors.New("connection reset by peer"), http.StatusInternalServerError, "Server error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.respondWithServiceError(rec, httptest.NewRequest(http.MethodPost, "/", nil), "test", tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.message, errorBody(t, rec), tc.err.Error())
	}
}

func TestHandleMe_WithoutAccount(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleMe(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleFindAccount(t *testing.T) {
	h, _ := newTestHandler(t)
	post(h.HandleRequestPhoneOTP, `{"phone":"+15551234"}`)

	rec := httptest.NewRecorder()
	h.HandleFindAccount(rec, httptest.NewRequest(http.MethodGet, "/api/admin/accounts?phone=%2B15551234", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// an unencoded plus sign still matches the stored number
	plain := httptest.NewRecorder()
	h.HandleFindAccount(plain, httptest.NewRequest(http.MethodGet, "/api/admin/accounts?phone=+15551234", nil))
	require.Equal(t, http.StatusOK, plain.Code, plain.Body.String())
	var body map[string]accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "+15551234", body["account"].Phone)
	assert.Equal(t, "User", body["account"].Name)
	assert.NotContains(t, rec.Body.String(), "Hash")

	rec = httptest.NewRecorder()
	h.HandleFindAccount(rec, httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleFindAccount(rec, httptest.NewRequest(http.MethodGet, "/api/admin/accounts?email=nobody@example.com", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
