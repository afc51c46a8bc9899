package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"timeclock/cmd/config"
	"timeclock/cmd/utils"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
const STATE_COOKIE = "oauth_state"
const sessionLifetime = 12 * time.Hour

type Session struct {
	Email   string
	IsAdmin bool
	Expires time.Time
}

// SessionStore holds logged in admins in memory; a restart logs everyone
// out.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: map[uuid.UUID]Session{},
		now:      time.Now,
	}
}

func (st *SessionStore) Create(email string, isAdmin bool) uuid.UUID {
	st.mu.Lock()
	defer st.mu.Unlock()
	token := uuid.New()
	st.sessions[token] = Session{
		Email:   email,
		IsAdmin: isAdmin,
		Expires: st.now().Add(sessionLifetime),
	}
	return token
}

func (st *SessionStore) Get(token uuid.UUID) (Session, bool) {
	st.mu.RLock()
	session, ok := st.sessions[token]
	st.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if st.now().After(session.Expires) {
		st.Delete(token)
		return Session{}, false
	}
	return session, true
}

func (st *SessionStore) Delete(token uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, token)
}

func googleOauthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
		Endpoint:     google.Endpoint,
	}
}

func (s *Server) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.Config.DevMode {
		s.HandleGoogleCallback(w, r)
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     STATE_COOKIE,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	url := s.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce, oauth2.SetAuthURLParam("prompt", "select_account"))
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (s *Server) HandleGoogleLogout(w http.ResponseWriter, r *http.Request) {
	if token := GetTokenFromCookies(r); token != nil {
		s.Sessions.Delete(*token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SESSION_COOKIE,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

type GoogleCallbackBody struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (s *Server) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	var userInfo GoogleCallbackBody
	if !s.Config.DevMode {
		info, err := s.fetchGoogleUser(r)
		if err != nil {
			utils.PrintError(err, "Google login failed")
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "login failed"})
			return
		}
		userInfo = info
	} else {
		userInfo = GoogleCallbackBody{ID: "DEV", Email: "dev@localhost"}
	}

	isAdmin := s.Config.DevMode || s.Config.IsAdminEmail(userInfo.Email)
	if !isAdmin {
		utils.PrintWarning("Refused login for %s", userInfo.Email)
		writeJSON(w, http.StatusForbidden, errorBody{Error: "not an administrator"})
		return
	}

	sessionIdentifier := s.Sessions.Create(userInfo.Email, isAdmin)
	http.SetCookie(w, &http.Cookie{
		Name:     SESSION_COOKIE,
		Value:    sessionIdentifier.String(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	utils.PrintLog("Admin login for %s", userInfo.Email)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) fetchGoogleUser(r *http.Request) (GoogleCallbackBody, error) {
	var userInfo GoogleCallbackBody
	state, err := r.Cookie(STATE_COOKIE)
	if err != nil || state.Value != r.URL.Query().Get("state") {
		return userInfo, errors.New("oauth state mismatch")
	}

	ctx := r.Context()
	token, err := s.OAuth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		return userInfo, fmt.Errorf("exchange token: %w", err)
	}

	response, err := s.OAuth.Client(ctx, token).Get(s.UserInfoURL)
	if err != nil {
		return userInfo, fmt.Errorf("fetch user info: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return userInfo, fmt.Errorf("fetch user info: status %d", response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(&userInfo); err != nil {
		return userInfo, fmt.Errorf("decode user info: %w", err)
	}
	return userInfo, nil
}
