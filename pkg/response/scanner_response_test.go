package response

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"scanner_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type sample struct {
	ID     string   `json:"id"`
	URLs   []string `json:"public_urls"`
	Hidden string   `json:"-"`
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestOK_SelectFields(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return OK(c, &sample{ID: "x", URLs: []string{"https://a"}, Hidden: "h"})
	})

	tests := []struct {
		name     string
		query    string
		wantKeys []string
		noKeys   []string
	}{
		{"all fields", "", []string{"id", "public_urls"}, nil},
		{"subset", "?fields=public_urls", []string{"public_urls"}, []string{"id"}},
		{"case and spaces", "?fields=%20ID%20", []string{"id"}, []string{"public_urls"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
			if err != nil {
				t.Fatal(err)
			}
			body := decode(t, resp.Body)
			data, ok := body["data"].(map[string]any)
			if !ok {
				t.Fatalf("data is %T", body["data"])
			}
			for _, k := range tt.wantKeys {
				if _, ok := data[k]; !ok {
					t.Errorf("missing key %q in %v", k, data)
				}
			}
			for _, k := range tt.noKeys {
				if _, ok := data[k]; ok {
					t.Errorf("unexpected key %q in %v", k, data)
				}
			}
		})
	}
}

func TestFromError(t *testing.T) {
	app := fiber.New()
	app.Get("/app", func(c *fiber.Ctx) error {
		return FromError(c, apperr.NotAuthenticated())
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return FromError(c, io.EOF)
	})

	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{"/app", 401, apperr.CodeNotAuthenticated},
		{"/plain", 500, apperr.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			b, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(b), tt.wantCode) {
				t.Errorf("body %s missing code %s", b, tt.wantCode)
			}
		})
	}
}
