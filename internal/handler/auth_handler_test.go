package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/murmur/internal/middleware"
	"github.com/hitoshi/murmur/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	initiateFn func(ctx context.Context, session *model.Session, providerID, returnURL string) (string, error)
	completeFn func(ctx context.Context, session *model.Session, providerID, state, code string) (string, error)
	logoutFn   func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Initiate(ctx context.Context, session *model.Session, providerID, returnURL string) (string, error) {
	if m.initiateFn != nil {
		return m.initiateFn(ctx, session, providerID, returnURL)
	}
	return "", nil
}

func (m *mockAuthService) Complete(ctx context.Context, session *model.Session, providerID, state, code string) (string, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, session, providerID, state, code)
	}
	return "/", nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type countingHandshakeRecorder struct {
	failures []string
}

func (c *countingHandshakeRecorder) RecordHandshakeFailure(providerID string) {
	c.failures = append(c.failures, providerID)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ HandshakeFailureRecorder = (*countingHandshakeRecorder)(nil)

// --- テストヘルパー ---

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:      "https://app.example.com",
		CookieDomain: "app.example.com",
		CookieSecure: true,
	}
}

// newAuthRequest はchiのURLパラメータとセッションを持つリクエストを作る。
func newAuthRequest(method, target, provider string, session *model.Session) *http.Request {
	req := httptest.NewRequest(method, target, nil)

	rctx := chi.NewRouteContext()
	if provider != "" {
		rctx.URLParams.Add("provider", provider)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if session != nil {
		ctx = middleware.ContextWithSession(ctx, session)
	}
	return req.WithContext(ctx)
}

func anonymousSession() *model.Session {
	return &model.Session{ID: "session-1"}
}

// --- テスト ---

func TestLogin_RedirectsToAuthURL(t *testing.T) {
	var gotProvider, gotReturnURL string
	service := &mockAuthService{
		initiateFn: func(ctx context.Context, session *model.Session, providerID, returnURL string) (string, error) {
			gotProvider = providerID
			gotReturnURL = returnURL
			return "https://idp.example.com/auth?state=abc", nil
		},
	}
	h := NewAuthHandler(service, testAuthConfig(), nil)

	req := newAuthRequest(http.MethodGet, "/auth/google/login?return_url=/rooms/1", "google", anonymousSession())
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
	if got := rec.Header().Get("Location"); got != "https://idp.example.com/auth?state=abc" {
		t.Errorf("Location = %q, want auth URL", got)
	}
	if gotProvider != "google" {
		t.Errorf("provider = %q, want %q", gotProvider, "google")
	}
	if gotReturnURL != "/rooms/1" {
		t.Errorf("return_url = %q, want %q", gotReturnURL, "/rooms/1")
	}
}

func TestLogin_UnknownProvider_Returns404(t *testing.T) {
	service := &mockAuthService{
		initiateFn: func(ctx context.Context, session *model.Session, providerID, returnURL string) (string, error) {
			return "", model.NewUnknownProviderError(providerID)
		},
	}
	h := NewAuthHandler(service, testAuthConfig(), nil)

	req := newAuthRequest(http.MethodGet, "/auth/twitter/login", "twitter", anonymousSession())
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var resp apiErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Code != "UNKNOWN_PROVIDER" {
		t.Errorf("error code = %q, want %q", resp.Code, "UNKNOWN_PROVIDER")
	}
}

func TestLogin_NoSession_Returns500(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig(), nil)

	req := newAuthRequest(http.MethodGet, "/auth/google/login", "google", nil)
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestCallback_Success_RedirectsToReturnURL(t *testing.T) {
	service := &mockAuthService{
		completeFn: func(ctx context.Context, session *model.Session, providerID, state, code string) (string, error) {
			if state != "state-abc" || code != "code-xyz" {
				t.Errorf("state/code = %q/%q, want state-abc/code-xyz", state, code)
			}
			return "/rooms/7", nil
		},
	}
	recorder := &countingHandshakeRecorder{}
	h := NewAuthHandler(service, testAuthConfig(), recorder)

	req := newAuthRequest(http.MethodGet, "/auth/google/callback?state=state-abc&code=code-xyz", "google", anonymousSession())
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
	if got := rec.Header().Get("Location"); got != "https://app.example.com/rooms/7" {
		t.Errorf("Location = %q, want %q", got, "https://app.example.com/rooms/7")
	}
	if len(recorder.failures) != 0 {
		t.Error("successful callback must not record a handshake failure")
	}
}

func TestCallback_Failure_RecordsMetricAndMapsStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"CSRF不一致は400", model.NewCSRFMismatchError(), http.StatusBadRequest},
		{"進行中フロー無しは400", model.NewNoPendingHandshakeError(), http.StatusBadRequest},
		{"stateが無いのは400", model.NewMissingStateError(), http.StatusBadRequest},
		{"上流エラーは502", model.NewUpstreamError("IdPが応答しません"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockAuthService{
				completeFn: func(ctx context.Context, session *model.Session, providerID, state, code string) (string, error) {
					return "", tt.err
				},
			}
			recorder := &countingHandshakeRecorder{}
			h := NewAuthHandler(service, testAuthConfig(), recorder)

			req := newAuthRequest(http.MethodGet, "/auth/google/callback?state=x&code=y", "google", anonymousSession())
			rec := httptest.NewRecorder()

			h.Callback(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(recorder.failures) != 1 || recorder.failures[0] != "google" {
				t.Errorf("handshake failures = %v, want [google]", recorder.failures)
			}
		})
	}
}

func TestLogout_DeletesSessionAndClearsCookie(t *testing.T) {
	var deletedID string
	service := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			deletedID = sessionID
			return nil
		},
	}
	h := NewAuthHandler(service, testAuthConfig(), nil)

	req := newAuthRequest(http.MethodPost, "/auth/logout", "", anonymousSession())
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-1"})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	if deletedID != "session-1" {
		t.Errorf("deleted session = %q, want %q", deletedID, "session-1")
	}
	if rec.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}

	cookies := rec.Result().Cookies()
	var cleared bool
	for _, c := range cookies {
		if c.Name == "session_id" && c.MaxAge < 0 && c.Value == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected session cookie to be cleared")
	}
}

func TestLogout_OpenRedirect_FallsBackToRoot(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig(), nil)

	req := newAuthRequest(http.MethodGet, "/auth/logout?return_url=https://evil.example.com", "", anonymousSession())
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	if got := rec.Header().Get("Location"); got != "https://app.example.com/" {
		t.Errorf("Location = %q, want root of base URL", got)
	}
}

func TestMe_Authenticated_ReturnsUserInfo(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig(), nil)

	session := &model.Session{
		ID:   "session-1",
		Data: model.SessionData{UserID: "user-42", DisplayName: "花子"},
	}
	req := newAuthRequest(http.MethodGet, "/auth/me", "", session)
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["user_id"] != "user-42" {
		t.Errorf("user_id = %q, want %q", resp["user_id"], "user-42")
	}
	if resp["display_name"] != "花子" {
		t.Errorf("display_name = %q, want %q", resp["display_name"], "花子")
	}
}

func TestMe_Anonymous_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig(), nil)

	req := newAuthRequest(http.MethodGet, "/auth/me", "", anonymousSession())
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
