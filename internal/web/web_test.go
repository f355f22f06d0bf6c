package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/local/fileconverter/internal/config"
	"github.com/local/fileconverter/internal/diskspace"
	"github.com/local/fileconverter/internal/statuscheck"
	"github.com/local/fileconverter/internal/store"
)

type stubStatus struct {
	summary statuscheck.Summary
}

func (s *stubStatus) Summary(ctx context.Context) statuscheck.Summary { return s.summary }

type stubSpace struct {
	free int64
	err  error
}

func (s *stubSpace) FreeBytes() (int64, error) { return s.free, s.err }

func healthySummary() statuscheck.Summary {
	ok := statuscheck.Status{OK: true, Message: "fine"}
	return statuscheck.Summary{LibreOffice: ok, TempRoot: ok, Disk: ok, Redis: ok, S3: ok}
}

func newTestWeb(t *testing.T, username, password string) (*Web, *http.ServeMux) {
	t.Helper()
	cfg := config.WebConfig{SessionTTL: time.Hour}
	if username != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		cfg.Username = username
		cfg.PasswordHash = string(hash)
	}

	hist := store.NewMemoryHistory(8)
	hist.Record(context.Background(), store.Entry{
		ID: "e1", Kind: "document", Input: "report.docx", Target: "pdf",
		Outcome: "success", BytesIn: 1024, BytesOut: 2048, DurationMS: 310, CreatedAt: time.Now(),
	})

	w := New(cfg, &stubStatus{summary: healthySummary()}, hist,
		&stubSpace{free: 42 * diskspace.GiB},
		diskspace.ThresholdsFromGB(10, 0.1, 5))
	mux := http.NewServeMux()
	w.RegisterRoutes(mux)
	return w, mux
}

func login(t *testing.T, mux *http.ServeMux, username, password string) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/web/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/web/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, sessionCookie, cookies[0].Name)
	require.NotEmpty(t, cookies[0].Value)
	return cookies[0]
}

func TestLoginAndDashboard(t *testing.T) {
	_, mux := newTestWeb(t, "admin", "s3cret")
	cookie := login(t, mux, "admin", "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/web/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Disk headroom")
	require.Contains(t, body, "report.docx")
	require.Contains(t, body, "42.00 GB free")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, mux := newTestWeb(t, "admin", "s3cret")

	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/web/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "error=")
	require.Empty(t, rec.Result().Cookies())
}

func TestDashboardRequiresSession(t *testing.T) {
	_, mux := newTestWeb(t, "admin", "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/web/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/web/login", rec.Header().Get("Location"))
}

func TestLogoutInvalidatesSession(t *testing.T) {
	_, mux := newTestWeb(t, "admin", "s3cret")
	cookie := login(t, mux, "admin", "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/web/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/web/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/web/login", rec.Header().Get("Location"))
}

func TestExpiredSessionRejected(t *testing.T) {
	w, mux := newTestWeb(t, "admin", "s3cret")
	cookie := login(t, mux, "admin", "s3cret")

	w.mu.Lock()
	w.sessions[cookie.Value] = time.Now().Add(-time.Minute)
	w.mu.Unlock()

	req := httptest.NewRequest(http.MethodGet, "/web/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestDisabledWithoutCredentials(t *testing.T) {
	w, mux := newTestWeb(t, "", "")
	require.False(t, w.Enabled())

	for _, path := range []string{"/web/", "/web/login", "/web/status.json"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestStatusJSON(t *testing.T) {
	_, mux := newTestWeb(t, "admin", "s3cret")
	cookie := login(t, mux, "admin", "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/web/status.json", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary statuscheck.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.True(t, summary.OK())
}

func TestStatusJSONUnhealthy(t *testing.T) {
	w, _ := newTestWeb(t, "admin", "s3cret")
	w.status = &stubStatus{summary: statuscheck.Summary{
		LibreOffice: statuscheck.Status{OK: false, Message: "not found"},
	}}
	mux := http.NewServeMux()
	w.RegisterRoutes(mux)
	cookie := login(t, mux, "admin", "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/web/status.json", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
