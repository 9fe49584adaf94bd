package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scanner_server/config"
	"scanner_server/core/domain"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

type stubScans struct {
	result *domain.ScanResult
	err    error
	source string
}

func (s *stubScans) Scan(ctx context.Context) (*domain.ScanResult, error) {
	return s.ScanSource(ctx, "")
}

func (s *stubScans) ScanSource(_ context.Context, source string) (*domain.ScanResult, error) {
	s.source = source
	return s.result, s.err
}

type stubAuth struct {
	code string
}

func (a *stubAuth) AuthURL() (string, string, error) {
	return "https://accounts.example.com/auth?state=good", "good", nil
}

func (a *stubAuth) VerifyState(state string) error {
	if state != "good" {
		return domain.ErrInvalidState
	}
	return nil
}

func (a *stubAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	a.code = code
	return &oauth2.Token{AccessToken: "t", Expiry: time.Now().Add(time.Hour)}, nil
}

func (a *stubAuth) Token() (*oauth2.Token, error) { return nil, domain.ErrNotAuthenticated }
func (a *stubAuth) Config() *oauth2.Config       { return &oauth2.Config{} }

func sampleResult() *domain.ScanResult {
	r := domain.NewScanResult("gmail")
	r.State = domain.ScanDone
	r.MessagesTotal = 1203
	r.MessagesScanned = 1200
	r.MessagesFailed = 3
	r.PublicURLs = []string{"https://www.dropbox.com/s/abc/report.pdf"}
	r.Messages = []domain.MessageReport{
		{
			MessageID:    "m1",
			SizeEstimate: 2048,
			ReceivedAt:   time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
			Snippet:      "quarterly report...",
			PublicURLs:   []string{"https://www.dropbox.com/s/abc/report.pdf"},
		},
		{MessageID: "m2", SizeEstimate: 512, Snippet: "lunch?"},
		{MessageID: "m3", PublicURLs: []string{"https://drive.google.com/file/d/x/view"}},
	}
	return r
}

func TestRunScan_Text(t *testing.T) {
	scans := &stubScans{result: sampleResult()}
	var buf bytes.Buffer
	if err := RunScan(context.Background(), scans, ScanOptions{Source: "mbox"}, &buf); err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Email messages scanned: 1,203",
		"Scanned successfully: 1,200",
		"Scanned unsuccessfully: 3",
		"Found 1 public file URLs in message m1 (2.0 kB, created 2024-03-01). Snippet: quarterly report...",
		"Found 1 public file URLs in message m3 (unknown size, unknown date). Snippet: ",
		"https://www.dropbox.com/s/abc/report.pdf",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "message m2") {
		t.Errorf("message without public links printed:\n%s", out)
	}
	if scans.source != "mbox" {
		t.Errorf("source = %q", scans.source)
	}
}

func TestRunScan_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := RunScan(context.Background(), &stubScans{result: sampleResult()}, ScanOptions{JSON: true}, &buf); err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	var decoded struct {
		State      string   `json:"state"`
		PublicURLs []string `json:"public_urls"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.State != "done" || len(decoded.PublicURLs) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRunScan_FailureWritesPartialResult(t *testing.T) {
	failed := domain.NewScanResult("gmail")
	failed.State = domain.ScanFailed
	cause := &domain.RetrievalError{PageToken: "p3", Err: errors.New("quota")}

	var buf bytes.Buffer
	err := RunScan(context.Background(), &stubScans{result: failed, err: cause}, ScanOptions{}, &buf)
	var re *domain.RetrievalError
	if !errors.As(err, &re) || re.PageToken != "p3" {
		t.Fatalf("err = %v, want RetrievalError", err)
	}
	if !strings.Contains(buf.String(), "failed") {
		t.Errorf("partial result not written:\n%s", buf.String())
	}
}

func TestParseAuthInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare code", "4/0Abc", "4/0Abc", false},
		{"redirect url", "http://localhost:8080/oauth2callback?code=4/0Abc&state=good", "4/0Abc", false},
		{"forged state", "http://localhost:8080/oauth2callback?code=4/0Abc&state=bad", "", true},
		{"denied", "http://localhost:8080/oauth2callback?error=access_denied&state=good", "", true},
		{"no code", "http://localhost:8080/oauth2callback?state=good", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAuthInput(tt.input, &stubAuth{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunAuth(t *testing.T) {
	auth := &stubAuth{}
	var out bytes.Buffer
	in := strings.NewReader("http://localhost:8080/oauth2callback?code=abc&state=good\n")

	if err := RunAuth(context.Background(), auth, in, &out); err != nil {
		t.Fatalf("RunAuth: %v", err)
	}
	if auth.code != "abc" {
		t.Errorf("exchanged code = %q", auth.code)
	}
	if !strings.Contains(out.String(), "https://accounts.example.com/auth?state=good") {
		t.Errorf("consent URL not printed:\n%s", out.String())
	}
}

const plainMbox = `From alice@example.com Mon Jan  1 00:00:00 2024
From: Alice <alice@example.com>
Subject: hello
Date: Mon, 01 Jan 2024 10:00:00 +0000

Nothing shared here, just https://example.com/blog.

`

func mboxConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "inbox.mbox")
	if err := os.WriteFile(path, []byte(plainMbox), 0o600); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		Environment:           "test",
		ScanSource:            "mbox",
		MboxPath:              path,
		GoogleCredentialsFile: filepath.Join(dir, "missing-credentials.json"),
		TokenStore:            config.TokenStoreFile,
		TokenFile:             filepath.Join(dir, "token.json"),
		ScanConcurrency:       4,
		ProbeConcurrency:      4,
		ProbeMethod:           "GET",
		ProbeTimeout:          time.Second,
	}
}

func TestNewDependencies_OfflineMboxScan(t *testing.T) {
	deps, cleanup, err := NewDependencies(mboxConfig(t))
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()

	if deps.OAuthService != nil || deps.OAuthErr == nil {
		t.Error("oauth should be unavailable without credentials")
	}

	result, err := deps.ScanService.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.State != domain.ScanDone || result.MessagesScanned != 1 || len(result.PublicURLs) != 0 {
		t.Errorf("result = %+v", result)
	}

	if _, err := deps.ScanService.ScanSource(context.Background(), "gmail"); err == nil {
		t.Error("gmail scan without oauth should fail")
	}
}

func TestNewAPI_Routes(t *testing.T) {
	deps, cleanup, err := NewDependencies(mboxConfig(t))
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()
	app := newAPIFromDeps(deps)

	tests := []struct {
		method, target string
		want           int
	}{
		{"GET", "/health", 200},
		{"GET", "/ready", 200},
		{"GET", "/metrics", 200},
		{"POST", "/scan", 200},
		{"GET", "/auth", 404},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.target, nil), 5000)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
