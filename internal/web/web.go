// Package web is the ops dashboard: a login-gated status page showing disk
// headroom, dependency health, and recent conversions.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/local/fileconverter/internal/config"
	"github.com/local/fileconverter/internal/diskspace"
	"github.com/local/fileconverter/internal/statuscheck"
	"github.com/local/fileconverter/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionCookie = "fileconverter_session"

// StatusSource produces the dependency health summary.
type StatusSource interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Web serves the dashboard. Sessions live in memory, so a restart logs
// everyone out.
type Web struct {
	cfg     config.WebConfig
	tpl     *template.Template
	status  StatusSource
	history store.History
	free    diskspace.FreeSpace
	thr     diskspace.Thresholds

	mu       sync.Mutex
	sessions map[string]time.Time
}

// New builds the dashboard over the given collaborators.
func New(cfg config.WebConfig, status StatusSource, history store.History, free diskspace.FreeSpace, thr diskspace.Thresholds) *Web {
	return &Web{
		cfg:      cfg,
		tpl:      template.Must(template.ParseFS(templateFS, "templates/*.html")),
		status:   status,
		history:  history,
		free:     free,
		thr:      thr,
		sessions: make(map[string]time.Time),
	}
}

// Enabled reports whether dashboard credentials are configured. Without them
// every dashboard route answers 403.
func (w *Web) Enabled() bool { return w.cfg.Username != "" && w.cfg.PasswordHash != "" }

// RegisterRoutes attaches the dashboard under /web/.
func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/web/login", w.handleLogin)
	mux.HandleFunc("/web/logout", w.handleLogout)
	mux.HandleFunc("/web/status.json", w.requireAuth(w.handleStatusJSON))
	mux.HandleFunc("/web/", w.requireAuth(w.handleDashboard))
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
	if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("template render failed")
	}
}

func (w *Web) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(wr http.ResponseWriter, r *http.Request) {
		if !w.Enabled() {
			http.Error(wr, "dashboard disabled: WEB_USERNAME/WEB_PASSWORD_HASH not set", http.StatusForbidden)
			return
		}
		if !w.validSession(r) {
			http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
			return
		}
		next(wr, r)
	}
}

func (w *Web) newSession() *http.Cookie {
	id := uuid.NewString()
	w.mu.Lock()
	w.sessions[id] = time.Now().Add(w.cfg.SessionTTL)
	w.mu.Unlock()
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/web",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(w.cfg.SessionTTL.Seconds()),
	}
}

func (w *Web) validSession(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	expiry, ok := w.sessions[c.Value]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(w.sessions, c.Value)
		return false
	}
	return true
}

func (w *Web) dropSession(r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		w.mu.Lock()
		delete(w.sessions, c.Value)
		w.mu.Unlock()
	}
}

func (w *Web) handleLogin(wr http.ResponseWriter, r *http.Request) {
	if !w.Enabled() {
		http.Error(wr, "dashboard disabled: WEB_USERNAME/WEB_PASSWORD_HASH not set", http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.render(wr, "login.html", map[string]any{"Error": r.URL.Query().Get("error")})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Redirect(wr, r, "/web/login?error=invalid+form", http.StatusSeeOther)
			return
		}
		if w.checkCredentials(r.Form.Get("username"), r.Form.Get("password")) {
			http.SetCookie(wr, w.newSession())
			http.Redirect(wr, r, "/web/", http.StatusSeeOther)
			return
		}
		log.Warn().Str("remote", r.RemoteAddr).Msg("dashboard login failed")
		http.Redirect(wr, r, "/web/login?error=invalid+credentials", http.StatusSeeOther)
	default:
		wr.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// checkCredentials verifies the password against the configured bcrypt hash.
func (w *Web) checkCredentials(username, password string) bool {
	if username != w.cfg.Username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(w.cfg.PasswordHash), []byte(password)) == nil
}

func (w *Web) handleLogout(wr http.ResponseWriter, r *http.Request) {
	w.dropSession(r)
	http.SetCookie(wr, &http.Cookie{Name: sessionCookie, Value: "", Path: "/web", MaxAge: -1})
	http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
}

type dashboardData struct {
	Username    string
	Summary     statuscheck.Summary
	FreeKnown   bool
	FreeGB      float64
	ConvertGB   float64
	PurgeGB     float64
	HeadroomPct int
	History     []store.Entry
}

func (w *Web) handleDashboard(wr http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := dashboardData{
		Username: w.cfg.Username,
		Summary:  w.status.Summary(ctx),
	}

	if free, err := w.free.FreeBytes(); err == nil {
		data.FreeKnown = true
		data.FreeGB = float64(free) / diskspace.GiB
		data.ConvertGB = float64(w.thr.ConvertMinFree) / diskspace.GiB
		data.PurgeGB = float64(w.thr.PurgeBelow) / diskspace.GiB
		if w.thr.ConvertMinFree > 0 {
			pct := int(float64(free) / float64(w.thr.ConvertMinFree) * 100)
			if pct > 100 {
				pct = 100
			}
			data.HeadroomPct = pct
		}
	} else {
		log.Warn().Err(err).Msg("free space read failed for dashboard")
	}

	if w.history != nil {
		entries, err := w.history.Recent(ctx, 20)
		if err != nil {
			log.Warn().Err(err).Msg("history read failed")
		}
		data.History = entries
	}

	w.render(wr, "dashboard.html", data)
}

func (w *Web) handleStatusJSON(wr http.ResponseWriter, r *http.Request) {
	summary := w.status.Summary(r.Context())
	wr.Header().Set("Content-Type", "application/json")
	if !summary.OK() {
		wr.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(wr).Encode(summary)
}
