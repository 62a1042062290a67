package api

import (
	"net/http"
	"strings"
	"time"

	"gamezone/internal/metrics"
	"gamezone/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	Name          string    `json:"name,omitempty"`
	Username      string    `json:"username,omitempty"`
	Store         string    `json:"store,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

func (s *HTTPServer) sessionView() sessionResponse {
	staff, ok := s.deps.Session.Staff()
	if !ok {
		return sessionResponse{}
	}
	return sessionResponse{
		Authenticated: true,
		Name:          staff.Name,
		Username:      staff.Username,
		Store:         staff.Store,
		ExpiresAt:     s.deps.Session.ExpiresAt(),
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("login")

	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	resp, err := s.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err = s.deps.Session.Login(r.Context(), resp.Token, resp.Staff); err != nil {
		fail(w, r, err)
		return
	}
	s.deps.Catalogs.Invalidate()

	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("logout")
	s.deps.Session.Logout(r.Context(), session.ReasonManual)
	s.deps.Catalogs.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("session")
	writeJSON(w, http.StatusOK, s.sessionView())
}

type screenView struct {
	Screen         string `json:"screen"`
	Game           string `json:"game"`
	Durations      []int  `json:"durations"`
	AllowedPlayers []int  `json:"allowedPlayers"`
}

type catalogResponse struct {
	CafeEnabled bool         `json:"cafeEnabled"`
	Screens     []screenView `json:"screens"`
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("catalog")

	cat, err := s.deps.Catalogs.Load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := catalogResponse{CafeEnabled: cat.CafeEnabled, Screens: []screenView{}}
	for _, screen := range cat.Screens() {
		game, _ := cat.GameForScreen(screen)
		resp.Screens = append(resp.Screens, screenView{
			Screen:         screen,
			Game:           game,
			Durations:      cat.Durations(game),
			AllowedPlayers: cat.AllowedPlayers(game),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
