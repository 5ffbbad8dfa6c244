package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"ariabackend/internal/ratelimit"
	"ariabackend/pkg/domain"
	"ariabackend/pkg/index"
	"ariabackend/pkg/store"
	"ariabackend/services/aria/internal/app"
)

var otpCodePattern = regexp.MustCompile(`\(OTP\) is: (\d+)`)

type captureMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (c *captureMailer) Send(to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, body)
	return nil
}

func (c *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		t.Fatal("no mail captured")
	}
	match := otpCodePattern.FindStringSubmatch(c.bodies[len(c.bodies)-1])
	if match == nil {
		t.Fatalf("no code in mail body: %q", c.bodies[len(c.bodies)-1])
	}
	return match[1]
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeObjects) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec := []float32{0.01, 0.01}
	if strings.Contains(strings.ToLower(text), "payroll") {
		vec[0] = 1
	}
	return vec, nil
}

type fakeGenerator struct{}

func (fakeGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "Payroll runs at month end.", nil
}

type testServer struct {
	server  *Server
	mailer  *captureMailer
	indexes *index.Manager
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	mail := &captureMailer{}
	indexes, err := index.NewManager(index.ManagerConfig{
		Objects:  &fakeObjects{objects: make(map[string][]byte)},
		Embedder: fakeEmbedder{},
		WorkDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("index.NewManager: %v", err)
	}
	core, err := app.New(app.Config{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Store:     store.NewMemoryStore(),
		Mailer:    mail,
		Embedder:  fakeEmbedder{},
		Generator: fakeGenerator{},
		Indexes:   indexes,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return &testServer{
		server:  New(Config{App: core, OTPLimiter: limiter}),
		mailer:  mail,
		indexes: indexes,
	}
}

func (ts *testServer) post(t *testing.T, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	if rec := ts.post(t, "/request_signup_otp", "", map[string]string{"email": email}); rec.Code != http.StatusOK {
		t.Fatalf("request_signup_otp: %d %s", rec.Code, rec.Body)
	}
	code := ts.mailer.lastCode(t)
	if rec := ts.post(t, "/verify_signup_otp", "", map[string]string{"email": email, "otp": code}); rec.Code != http.StatusOK {
		t.Fatalf("verify_signup_otp: %d %s", rec.Code, rec.Body)
	}
	rec := ts.post(t, "/signup", "", map[string]string{"email": email, "password": "Abc12345!", "username": "orgadmin"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("signup response: %v %s", err, rec.Body)
	}
	return resp.Token
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestSignupLoginGenerateFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.signup(t, "org@corp.com")

	rec := ts.post(t, "/login", "", map[string]string{"email": "org@corp.com", "password": "Abc12345!"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}

	docs := []domain.Document{{Name: "handbook.txt", Text: "Payroll runs on the last business day."}}
	if _, err := ts.indexes.Provision(context.Background(), "org-corp-com", docs, true); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	rec = ts.post(t, "/generate", token, map[string]string{
		"userid":  "alice@corp.com",
		"query":   "when does payroll run",
		"db_name": "ORG",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: %d %s", rec.Code, rec.Body)
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Response == "" {
		t.Fatalf("generate response: %v %s", err, rec.Body)
	}
}

func TestEmployeeProcessFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.signup(t, "org@corp.com")

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Alice's payroll number is 4711."))
	}))
	defer docs.Close()

	rec := ts.post(t, "/emp_process", token, map[string]any{
		"files":  []string{docs.URL + "/notes.txt"},
		"userid": "alice@corp.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("emp_process: %d %s", rec.Code, rec.Body)
	}
	var processed struct {
		Chunks int `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &processed); err != nil || processed.Chunks == 0 {
		t.Fatalf("emp_process response: %v %s", err, rec.Body)
	}

	rec = ts.post(t, "/generate", token, map[string]string{
		"userid":  "alice@corp.com",
		"query":   "what is alice's payroll number",
		"db_name": "EMP",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate EMP: %d %s", rec.Code, rec.Body)
	}

	// Bearer auth still gates the endpoint.
	rec = ts.post(t, "/emp_process", "", map[string]any{
		"files":  []string{docs.URL + "/notes.txt"},
		"userid": "alice@corp.com",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}
}

func TestGenerateRequiresBearer(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.post(t, "/generate", "", map[string]string{"userid": "a@b.com", "query": "q"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = ts.post(t, "/generate", "not-a-token", map[string]string{"userid": "a@b.com", "query": "q"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "org@corp.com")

	// duplicate signup request conflicts
	if rec := ts.post(t, "/request_signup_otp", "", map[string]string{"email": "org@corp.com"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body)
	}
	// login OTP for unknown account
	if rec := ts.post(t, "/request_login_otp", "", map[string]string{"email": "ghost@corp.com"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", rec.Code, rec.Body)
	}
	// wrong password
	if rec := ts.post(t, "/login", "", map[string]string{"email": "org@corp.com", "password": "Wrong123!"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", rec.Code, rec.Body)
	}
	// wrong otp code
	ts.post(t, "/request_login_otp", "", map[string]string{"email": "org@corp.com"})
	if rec := ts.post(t, "/login_with_otp", "", map[string]string{"email": "org@corp.com", "otp": "000000"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body)
	}
	// unknown tenant filter words
	if rec := ts.post(t, "/get_filterwords", "", map[string]string{"email": "ghost@corp.com"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", rec.Code, rec.Body)
	}
	// malformed body
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	// wrong method
	getReq := httptest.NewRequest(http.MethodGet, "/login", nil)
	getRec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", getRec.Code)
	}
}

func TestAddDomainMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "org@corp.com")

	rec := ts.post(t, "/add_domain", "", map[string]string{"email": "org@corp.com", "domain": "corp.com"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "domain added") {
		t.Fatalf("first add: %d %s", rec.Code, rec.Body)
	}
	rec = ts.post(t, "/add_domain", "", map[string]string{"email": "org@corp.com", "domain": "corp.com"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "already present") {
		t.Fatalf("second add: %d %s", rec.Code, rec.Body)
	}
}

func TestOTPRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisLimiter(redis.Addr(), "", "test:otp", 2, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLimiter: %v", err)
	}
	ts := newTestServer(t, limiter)

	payload := map[string]string{"email": "org@corp.com"}
	for i := 0; i < 2; i++ {
		if rec := ts.post(t, "/request_signup_otp", "", payload); rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if rec := ts.post(t, "/request_signup_otp", "", payload); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
