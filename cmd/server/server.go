package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"timeclock/cmd/attendance"
	"timeclock/cmd/config"
	"timeclock/cmd/face"
	"timeclock/cmd/repository"
	"timeclock/cmd/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

type contextKey string

const SESSION_KEY contextKey = "sessionToken"
const SESSION_COOKIE = "session_token"

// Uploaded frames and rosters are small; anything larger is refused.
const maxUploadSize = 10 << 20

type Server struct {
	Service     *attendance.Service
	Config      *config.Config
	Sessions    *SessionStore
	OAuth       *oauth2.Config
	UserInfoURL string
}

func New(svc *attendance.Service, cfg *config.Config) *Server {
	return &Server{
		Service:     svc,
		Config:      cfg,
		Sessions:    NewSessionStore(),
		OAuth:       googleOauthConfig(cfg),
		UserInfoURL: googleUserInfoURL,
	}
}

// Routes registers every endpoint and wraps the mux for tracing.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.HandleHealth)

	mux.HandleFunc("GET /employees", s.HandleListEmployees)
	mux.HandleFunc("POST /clock", s.HandleClock)
	mux.HandleFunc("POST /clock/next", s.HandleClockNext)
	mux.HandleFunc("POST /clock/face", s.HandleClockFace)
	mux.HandleFunc("POST /schedule", s.HandleSchedule)
	mux.HandleFunc("GET /summary", s.HandleSummary)
	mux.HandleFunc("GET /timesheet", s.HandleTimesheet)
	mux.HandleFunc("GET /timesheet/saved", s.HandleSavedTimesheet)

	mux.HandleFunc("POST /employees", s.VerifyAdmin(s.HandleRegisterEmployee))
	mux.HandleFunc("POST /employees/face", s.VerifyAdmin(s.HandleRegisterFace))
	mux.HandleFunc("POST /import", s.VerifyAdmin(s.HandleImport))

	mux.HandleFunc("GET /login", s.HandleGoogleLogin)
	mux.HandleFunc("GET /auth/callback", s.HandleGoogleCallback)
	mux.HandleFunc("POST /logout", s.HandleGoogleLogout)

	return otelhttp.NewHandler(mux, "timeclock")
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) VerifyAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return s.VerifySession(func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.GetSession(r)
		if !ok || !session.IsAdmin {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "admin access required"})
			return
		}
		handler(w, r)
	})
}

func (s *Server) VerifySession(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionToken := GetTokenFromCookies(r)
		if sessionToken == nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "login required"})
			return
		}
		if _, ok := s.Sessions.Get(*sessionToken); !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "session expired"})
			return
		}
		ctx := context.WithValue(r.Context(), SESSION_KEY, *sessionToken)
		handler(w, r.WithContext(ctx))
	}
}

func (s *Server) GetSession(r *http.Request) (Session, bool) {
	sessionToken, ok := r.Context().Value(SESSION_KEY).(uuid.UUID)
	if !ok {
		return Session{}, false
	}
	return s.Sessions.Get(sessionToken)
}

func GetTokenFromCookies(r *http.Request) *uuid.UUID {
	cookie, err := r.Cookie(SESSION_COOKIE)
	if err != nil {
		return nil
	}
	token, err := uuid.Parse(cookie.Value)
	if err != nil {
		return nil
	}
	return &token
}

func ReadAndUnmarshal(w http.ResponseWriter, r *http.Request, reqBody interface{}) error {
	bytes, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		utils.PrintError(err, "Error reading body")
		w.WriteHeader(http.StatusBadRequest)
		return err
	}
	defer r.Body.Close()

	err = json.Unmarshal(bytes, reqBody)
	if err != nil {
		utils.PrintDebug("json: %v", string(bytes))
		utils.PrintError(err, "Error parsing json")
		w.WriteHeader(http.StatusBadRequest)
		return err
	}

	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		utils.PrintError(err, "Error writing response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrUnknownEmployee),
		errors.Is(err, attendance.ErrNoTimesheetDir):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrAlreadyRecorded),
		errors.Is(err, repository.ErrEmployeeExists),
		errors.Is(err, attendance.ErrShiftComplete):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrNoMatch),
		errors.Is(err, attendance.ErrNoRegisteredFaces),
		errors.Is(err, face.ErrNoFace):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrEncoderUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError logs server faults; client errors are only reported back.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		utils.PrintError(err, "Request failed")
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	utils.PrintDebug("Request rejected: %v", err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}
