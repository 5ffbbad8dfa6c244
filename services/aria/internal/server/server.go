package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"ariabackend/internal/ratelimit"
	"ariabackend/internal/util"
	"ariabackend/pkg/auth"
	"ariabackend/pkg/domain"
	"ariabackend/pkg/index"
	"ariabackend/pkg/otp"
	"ariabackend/pkg/store"
	"ariabackend/pkg/token"
	"ariabackend/services/aria/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// OTPLimiter throttles the passcode request endpoints per client IP.
	// Nil disables throttling.
	OTPLimiter *ratelimit.Limiter

	// TrustedProxies controls which peers may supply forwarded-for headers.
	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP endpoints of the assistant backend.
type Server struct {
	app        *app.App
	otpLimiter *ratelimit.Limiter
	trusted    *util.TrustedProxies
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:        cfg.App,
		otpLimiter: cfg.OTPLimiter,
		trusted:    cfg.TrustedProxies,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/request_signup_otp", s.otpLimited(s.handleRequestSignupOTP))
	s.mux.HandleFunc("/verify_signup_otp", s.handleVerifySignupOTP)
	s.mux.HandleFunc("/signup", s.handleSignup)
	s.mux.Handle("/request_login_otp", s.otpLimited(s.handleRequestLoginOTP))
	s.mux.HandleFunc("/login_with_otp", s.handleLoginWithOTP)
	s.mux.HandleFunc("/login", s.handleLogin)

	s.mux.HandleFunc("/add_domain", s.handleAddDomain)
	s.mux.HandleFunc("/get_filterwords", s.handleGetFilterWords)

	s.mux.Handle("/process", s.authenticated(s.handleProcess))
	s.mux.Handle("/emp_process", s.authenticated(s.handleEmployeeProcess))
	s.mux.Handle("/generate", s.authenticated(s.handleGenerate))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.Authenticate(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) otpLimited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.otpLimiter != nil && !s.otpLimiter.Allow(util.ClientIP(r, s.trusted)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleRequestSignupOTP(w http.ResponseWriter, r *http.Request) {
	s.handleRequestOTP(w, r, s.app.RequestSignupOTP)
}

func (s *Server) handleRequestLoginOTP(w http.ResponseWriter, r *http.Request) {
	s.handleRequestOTP(w, r, s.app.RequestLoginOTP)
}

func (s *Server) handleRequestOTP(w http.ResponseWriter, r *http.Request, request func(string) (otp.IssueResult, error)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req emailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := request(req.Email)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := statusResponse{Status: "ok", Message: "verification code sent"}
	if result.Degraded {
		resp.Status = "degraded"
		resp.Message = result.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifySignupOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req otpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.VerifySignupOTP(req.Email, req.OTP); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "email verified"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, tok, err := s.app.Signup(req.Email, req.Password, req.Username)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{
		Status:  "ok",
		Message: "account created successfully",
		Token:   tok,
		User:    user,
	})
}

func (s *Server) handleLoginWithOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req otpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, tok, err := s.app.LoginWithOTP(req.Email, req.OTP)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Status: "ok", Message: "login successful", Token: tok, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, tok, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Status: "ok", Message: "login successful", Token: tok, User: user})
}

func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addDomainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	added, err := s.app.AddDomain(req.Email, req.Domain)
	if err != nil {
		writeAppError(w, err)
		return
	}
	msg := "domain added"
	if !added {
		msg = "domain already present"
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: msg})
}

func (s *Server) handleGetFilterWords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req emailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	words, err := s.app.GetFilterWords(req.Email)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, filterWordsResponse{Status: "ok", FilterWords: words})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req processRequest
	if !decodeBody(w, r, &req) {
		return
	}
	chunks, words, err := s.app.ProcessDocuments(r.Context(), user, req.Files, req.Rewrite)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Status:      "ok",
		Message:     "documents processed",
		Chunks:      chunks,
		FilterWords: words,
	})
}

func (s *Server) handleEmployeeProcess(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req employeeProcessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	chunks, err := s.app.ProcessEmployeeDocuments(r.Context(), req.UserID, req.Files)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Status:  "ok",
		Message: "documents processed",
		Chunks:  chunks,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	answer, err := s.app.Generate(r.Context(), user, req.UserID, req.Query, req.DBName)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Status: "ok", Response: answer})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type emailRequest struct {
	Email string `json:"email"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type addDomainRequest struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`
}

type processRequest struct {
	Files   []string `json:"files"`
	Rewrite bool     `json:"rewrite"`
}

type employeeProcessRequest struct {
	Files  []string `json:"files"`
	UserID string   `json:"userid"`
}

type generateRequest struct {
	UserID string `json:"userid"`
	Query  string `json:"query"`
	DBName string `json:"db_name"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type authResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

type filterWordsResponse struct {
	Status      string   `json:"status"`
	FilterWords []string `json:"filterwords"`
}

type processResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Chunks      int      `json:"chunks"`
	FilterWords []string `json:"filterwords"`
}

type generateResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Warn("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tok == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return tok, true
}

// writeAppError maps core errors onto the HTTP status taxonomy.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, otp.ErrAccountConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, otp.ErrAccountNotFound),
		errors.Is(err, app.ErrTenantNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, index.ErrIndexNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, app.ErrAccountDisabled),
		errors.Is(err, app.ErrUnknownSubject):
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrDomainNotAllowed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, otp.ErrOTPNotFound),
		errors.Is(err, otp.ErrOTPExpired),
		errors.Is(err, otp.ErrOTPPurposeMismatch),
		errors.Is(err, otp.ErrOTPInvalid),
		errors.Is(err, otp.ErrEmailInvalid),
		errors.Is(err, app.ErrOTPNotVerified),
		errors.Is(err, app.ErrQueryRequired),
		errors.Is(err, app.ErrFilesRequired),
		errors.Is(err, app.ErrBadDatabaseName),
		isPolicyError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isPolicyError(err error) bool {
	var policyErr auth.PolicyError
	return errors.As(err, &policyErr)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
