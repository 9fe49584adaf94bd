package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"scanner_server/core/domain"
	"scanner_server/pkg/apperr"
	"scanner_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type fakeAuth struct {
	stateErr    error
	exchangeErr error
	exchanged   []string
}

func (f *fakeAuth) AuthURL() (string, string, error) {
	return "https://accounts.example.com/o/oauth2/auth?state=s1", "s1", nil
}

func (f *fakeAuth) VerifyState(state string) error {
	if f.stateErr != nil {
		return f.stateErr
	}
	if state != "s1" {
		return domain.ErrInvalidState
	}
	return nil
}

func (f *fakeAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.exchanged = append(f.exchanged, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "t"}, nil
}

func (f *fakeAuth) Token() (*oauth2.Token, error) { return nil, domain.ErrNotAuthenticated }

func (f *fakeAuth) Config() *oauth2.Config { return &oauth2.Config{} }

type fakeScans struct {
	result  *domain.ScanResult
	err     error
	sources []string
}

func (f *fakeScans) Scan(ctx context.Context) (*domain.ScanResult, error) {
	return f.ScanSource(ctx, "")
}

func (f *fakeScans) ScanSource(_ context.Context, source string) (*domain.ScanResult, error) {
	f.sources = append(f.sources, source)
	return f.result, f.err
}

func newTestApp(auth *fakeAuth, scans *fakeScans, checks ...ReadinessCheck) *fiber.App {
	app := fiber.New()
	NewHealthHandler(checks...).Register(app)
	NewOAuthHandler(auth, scans, zerolog.Nop()).Register(app)
	NewScanHandler(scans).Register(app)
	RegisterMetrics(app, metrics.New())
	return app
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func do(t *testing.T, app *fiber.App, method, target string) (int, envelope, http.Header) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var env envelope
	_ = json.Unmarshal(body, &env)
	return resp.StatusCode, env, resp.Header
}

func doneResult() *domain.ScanResult {
	r := domain.NewScanResult("gmail")
	r.State = domain.ScanDone
	r.PublicURLs = []string{"https://www.dropbox.com/s/abc/file.txt"}
	return r
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakeAuth{}, &fakeScans{})
	status, _, _ := do(t, app, "GET", "/health")
	if status != 200 {
		t.Errorf("status = %d", status)
	}
}

func TestReady(t *testing.T) {
	ok := ReadinessCheck{Name: "oauth", Check: func(context.Context) error { return nil }}
	bad := ReadinessCheck{Name: "token", Check: func(context.Context) error { return domain.ErrNotAuthenticated }}

	tests := []struct {
		name   string
		checks []ReadinessCheck
		want   int
	}{
		{"no checks", nil, 200},
		{"all healthy", []ReadinessCheck{ok}, 200},
		{"one failing", []ReadinessCheck{ok, bad}, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeAuth{}, &fakeScans{}, tt.checks...)
			if status, _, _ := do(t, app, "GET", "/ready"); status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestAuthRedirect(t *testing.T) {
	app := newTestApp(&fakeAuth{}, &fakeScans{})
	status, _, header := do(t, app, "GET", "/auth")
	if status != fiber.StatusFound {
		t.Fatalf("status = %d, want 302", status)
	}
	if loc := header.Get("Location"); loc != "https://accounts.example.com/o/oauth2/auth?state=s1" {
		t.Errorf("Location = %q", loc)
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		auth       *fakeAuth
		scans      *fakeScans
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			query:      "?code=c1&state=s1",
			auth:       &fakeAuth{},
			scans:      &fakeScans{result: doneResult()},
			wantStatus: 200,
		},
		{
			name:       "consent denied",
			query:      "?error=access_denied&state=s1",
			auth:       &fakeAuth{},
			scans:      &fakeScans{},
			wantStatus: 502,
			wantCode:   apperr.CodeOAuthFailed,
		},
		{
			name:       "forged state",
			query:      "?code=c1&state=evil",
			auth:       &fakeAuth{},
			scans:      &fakeScans{},
			wantStatus: 400,
			wantCode:   apperr.CodeInvalidState,
		},
		{
			name:       "missing code",
			query:      "?state=s1",
			auth:       &fakeAuth{},
			scans:      &fakeScans{},
			wantStatus: 400,
			wantCode:   apperr.CodeMissingField,
		},
		{
			name:       "exchange failure",
			query:      "?code=c1&state=s1",
			auth:       &fakeAuth{exchangeErr: errors.New("invalid_grant")},
			scans:      &fakeScans{},
			wantStatus: 502,
			wantCode:   apperr.CodeOAuthFailed,
		},
		{
			name:  "retrieval failure",
			query: "?code=c1&state=s1",
			auth:  &fakeAuth{},
			scans: &fakeScans{
				result: domain.NewScanResult("gmail"),
				err:    &domain.RetrievalError{PageToken: "p2", Err: errors.New("503")},
			},
			wantStatus: 502,
			wantCode:   apperr.CodeRetrievalFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tt.auth, tt.scans)
			status, env, _ := do(t, app, "GET", "/oauth2callback"+tt.query)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantCode == "" {
				if !env.Success {
					t.Error("expected success envelope")
				}
				return
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestCallback_RetrievalErrorDetails(t *testing.T) {
	result := domain.NewScanResult("gmail")
	scans := &fakeScans{result: result, err: &domain.RetrievalError{PageToken: "p2", Err: errors.New("503")}}
	app := newTestApp(&fakeAuth{}, scans)

	_, env, _ := do(t, app, "GET", "/oauth2callback?code=c1&state=s1")
	if env.Error == nil {
		t.Fatal("expected error envelope")
	}
	if env.Error.Details["page_token"] != "p2" {
		t.Errorf("page_token = %v", env.Error.Details["page_token"])
	}
	if env.Error.Details["scan_id"] != result.ID.String() {
		t.Errorf("scan_id = %v", env.Error.Details["scan_id"])
	}
}

func TestScanEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		scans      *fakeScans
		wantStatus int
		wantCode   string
		wantSource string
	}{
		{"default source", "/scan", &fakeScans{result: doneResult()}, 200, "", ""},
		{"explicit source", "/scan?source=mbox", &fakeScans{result: doneResult()}, 200, "", "mbox"},
		{"not authenticated", "/scan", &fakeScans{err: domain.ErrNotAuthenticated}, 401, apperr.CodeNotAuthenticated, ""},
		{"busy", "/scan", &fakeScans{err: domain.ErrScanInProgress}, 409, apperr.CodeScanInProgress, ""},
		{"unknown source", "/scan?source=imap", &fakeScans{err: domain.ErrUnknownSource}, 400, apperr.CodeBadRequest, "imap"},
		{"unexpected", "/scan", &fakeScans{err: errors.New("boom")}, 500, apperr.CodeInternalError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeAuth{}, tt.scans)
			status, env, _ := do(t, app, "POST", tt.target)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantCode != "" && (env.Error == nil || env.Error.Code != tt.wantCode) {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantCode)
			}
			if len(tt.scans.sources) != 1 || tt.scans.sources[0] != tt.wantSource {
				t.Errorf("sources = %v, want [%s]", tt.scans.sources, tt.wantSource)
			}
		})
	}
}

func TestScanEndpoint_FieldSelection(t *testing.T) {
	app := newTestApp(&fakeAuth{}, &fakeScans{result: doneResult()})
	_, env, _ := do(t, app, "POST", "/scan?fields=public_urls")

	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if _, ok := data["public_urls"]; !ok {
		t.Error("public_urls missing")
	}
	if len(data) != 1 {
		t.Errorf("data keys = %v, want only public_urls", data)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(&fakeAuth{}, &fakeScans{})
	if status, _, _ := do(t, app, "GET", "/metrics"); status != 200 {
		t.Errorf("status = %d", status)
	}
}
