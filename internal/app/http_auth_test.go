package app

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sitekeeper/api/internal/store"
)

// RFC 6238 reference secret: base32 of the ASCII digits 1-0 repeated twice.
const testTOTPSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func testTOTPCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], uint64(at.Unix()/30))
	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(message[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", value%1000000)
}

func postJSON(t *testing.T, server *HTTPServer, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestSignUpReturnsDevTokenWithoutSMTP(t *testing.T) {
	var created store.User
	fs := &fakeStore{
		createUserFn: func(_ context.Context, user store.User) error {
			created = user
			return nil
		},
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/auth/signup", `{"email":"New@Example.com","password":"password123","displayName":"Avery"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := parseBody(t, rr)
	if payload["devVerificationToken"] == "" || payload["devVerificationToken"] == nil {
		t.Fatalf("expected dev verification token when SMTP is unconfigured")
	}
	if created.Email != "new@example.com" {
		t.Fatalf("expected lowercased email, got %q", created.Email)
	}
	if created.IsEmailVerified {
		t.Fatalf("expected new account to start unverified")
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "user-1", Email: email}, nil
		},
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/auth/signup", `{"email":"taken@example.com","password":"password123","displayName":"Avery"}`, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "EMAIL_EXISTS" {
		t.Fatalf("expected code EMAIL_EXISTS")
	}
}

func testUserWithPassword(t *testing.T, password string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return store.User{
		ID:              "user-1",
		DisplayName:     "Avery",
		Email:           "avery@example.com",
		PasswordHash:    string(hash),
		Tier:            "free",
		IsEmailVerified: true,
	}
}

func TestSignInIssuesSession(t *testing.T) {
	user := testUserWithPassword(t, "password123")
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) { return user, nil },
		getUserByIDFn:    func(context.Context, string) (store.User, error) { return user, nil },
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/auth/signin", `{"email":"avery@example.com","password":"password123"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := parseBody(t, rr)
	if payload["accessToken"] == "" || payload["accessToken"] == nil {
		t.Fatalf("expected access token")
	}
	if payload["refreshToken"] == "" || payload["refreshToken"] == nil {
		t.Fatalf("expected refresh token")
	}
	if payload["tier"] != "free" {
		t.Fatalf("expected tier free, got %v", payload["tier"])
	}
}

func TestSignInWrongPassword(t *testing.T) {
	user := testUserWithPassword(t, "password123")
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) { return user, nil },
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/auth/signin", `{"email":"avery@example.com","password":"wrong-password"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected code INVALID_CREDENTIALS")
	}
}

func TestSignInUnverifiedEmail(t *testing.T) {
	user := testUserWithPassword(t, "password123")
	user.IsEmailVerified = false
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) { return user, nil },
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/auth/signin", `{"email":"avery@example.com","password":"password123"}`, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatalf("expected code EMAIL_NOT_VERIFIED")
	}
}

func TestSignInWithMFAReturnsChallengeAndVerifies(t *testing.T) {
	user := testUserWithPassword(t, "password123")
	user.MFAEnabled = true
	user.TOTPSecret = testTOTPSecret
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) { return user, nil },
		getUserByIDFn:    func(context.Context, string) (store.User, error) { return user, nil },
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/auth/signin", `{"email":"avery@example.com","password":"password123"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["mfaRequired"] != true {
		t.Fatalf("expected mfaRequired=true, got %v", payload)
	}
	challenge, _ := payload["challengeToken"].(string)
	if challenge == "" {
		t.Fatalf("expected challenge token")
	}
	if payload["accessToken"] != nil {
		t.Fatalf("expected no session before MFA verification")
	}

	code := testTOTPCode(t, testTOTPSecret, time.Now())
	body, _ := json.Marshal(map[string]string{"challengeToken": challenge, "code": code})
	verify := postJSON(t, server, "/api/auth/mfa/verify", string(body), "")
	if verify.Code != http.StatusOK {
		t.Fatalf("expected status 200 after MFA verify, got %d body=%s", verify.Code, verify.Body.String())
	}
	if parseBody(t, verify)["accessToken"] == nil {
		t.Fatalf("expected session after MFA verification")
	}
}

func TestMFAVerifyRejectsBadCode(t *testing.T) {
	user := testUserWithPassword(t, "password123")
	user.MFAEnabled = true
	user.TOTPSecret = testTOTPSecret
	fs := &fakeStore{
		getUserByIDFn: func(context.Context, string) (store.User, error) { return user, nil },
	}
	server := newTestServer(fs)
	svc := server.service

	challenge, err := svc.CreateMFAChallenge("user-1", user.Email)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	body, _ := json.Marshal(map[string]string{"challengeToken": challenge, "code": "000000"})
	rr := postJSON(t, server, "/api/auth/mfa/verify", string(body), "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestMFAVerifyRejectsAccessTokenAsChallenge(t *testing.T) {
	server := newTestServer(&fakeStore{})
	body, _ := json.Marshal(map[string]string{
		"challengeToken": testAccessToken(t, "user-1"),
		"code":           "000000",
	})
	rr := postJSON(t, server, "/api/auth/mfa/verify", string(body), "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for non-challenge token, got %d", rr.Code)
	}
}

func TestMFAEnrollRequiresSession(t *testing.T) {
	server := newTestServer(&fakeStore{})
	rr := postJSON(t, server, "/api/auth/mfa/enroll", `{}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestMFAEnrollAndActivate(t *testing.T) {
	var storedSecret string
	var mfaEnabled bool
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, Email: "avery@example.com", Tier: "free", IsEmailVerified: true, TOTPSecret: storedSecret}, nil
		},
		setUserTOTPFn: func(_ context.Context, _, secret string) error {
			storedSecret = secret
			return nil
		},
		setUserMFAEnabledFn: func(_ context.Context, _ string, enabled bool) error {
			mfaEnabled = enabled
			return nil
		},
	}
	server := newTestServer(fs)
	token := testAccessToken(t, "user-1")

	enroll := postJSON(t, server, "/api/auth/mfa/enroll", `{}`, token)
	if enroll.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", enroll.Code, enroll.Body.String())
	}
	payload := parseBody(t, enroll)
	if payload["secret"] == nil || payload["provisioningUrl"] == nil {
		t.Fatalf("expected secret and provisioning URL, got %v", payload)
	}
	if storedSecret == "" {
		t.Fatalf("expected secret to be persisted")
	}

	code := testTOTPCode(t, storedSecret, time.Now())
	body, _ := json.Marshal(map[string]string{"code": code})
	activate := postJSON(t, server, "/api/auth/mfa/activate", string(body), token)
	if activate.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", activate.Code, activate.Body.String())
	}
	if !mfaEnabled {
		t.Fatalf("expected MFA to be enabled after activation")
	}
}

func TestPasswordResetRequestReturnsDevToken(t *testing.T) {
	user := testUserWithPassword(t, "password123")
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) { return user, nil },
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/auth/reset-password/request", `{"email":"avery@example.com"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if parseBody(t, rr)["devResetToken"] == nil {
		t.Fatalf("expected dev reset token when SMTP is unconfigured")
	}
}

func TestPasswordResetRequestDoesNotLeakUnknownEmail(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rr := postJSON(t, server, "/api/auth/reset-password/request", `{"email":"nobody@example.com"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown email, got %d", rr.Code)
	}
	if parseBody(t, rr)["devResetToken"] != nil {
		t.Fatalf("expected no dev token for unknown email")
	}
}

func TestSessionEndpointReflectsToken(t *testing.T) {
	server := newTestServer(&fakeStore{})

	anon := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, anon)
	if parseBody(t, rr)["authenticated"] != false {
		t.Fatalf("expected authenticated=false without token")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+testAccessToken(t, "user-1"))
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	payload := parseBody(t, rr)
	if payload["authenticated"] != true {
		t.Fatalf("expected authenticated=true, got %v", payload)
	}
	if payload["userId"] != "user-1" {
		t.Fatalf("expected userId user-1, got %v", payload["userId"])
	}
}
