package check

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// mockLookup implements data.CountryLookup for testing.
type mockLookup struct {
	country string
	err     error
}

func (m *mockLookup) LookupCountry(_ net.IP) (string, error) {
	return m.country, m.err
}

func (m *mockLookup) Close() error {
	return nil
}

func setupRouter(lookup *mockLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(lookup)
	r.POST("/api/v1/check", h.Check)
	return r
}

// postCheck sends body to the check endpoint. A string body is sent as is,
// anything else is JSON encoded first.
func postCheck(t *testing.T, router *gin.Engine, body any) (int, CheckResponse) {
	t.Helper()

	raw, ok := body.(string)
	if !ok {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
		raw = string(b)
	}

	req, err := http.NewRequest(http.MethodPost, "/api/v1/check", bytes.NewReader([]byte(raw)))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp CheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, resp
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		lookup      *mockLookup
		req         CheckRequest
		wantAllowed bool
		wantCountry string
	}{
		{
			name:        "allowed country",
			lookup:      &mockLookup{country: "US"},
			req:         CheckRequest{IP: "1.2.3.4", AllowedCountries: []string{"US", "CA"}},
			wantAllowed: true,
			wantCountry: "US",
		},
		{
			name:        "denied country",
			lookup:      &mockLookup{country: "RU"},
			req:         CheckRequest{IP: "1.2.3.4", AllowedCountries: []string{"US", "CA"}},
			wantCountry: "RU",
		},
		{
			name:        "ipv6",
			lookup:      &mockLookup{country: "DE"},
			req:         CheckRequest{IP: "2001:db8::1", AllowedCountries: []string{"DE"}},
			wantAllowed: true,
			wantCountry: "DE",
		},
		{
			name:        "lower-case country code",
			lookup:      &mockLookup{country: "GB"},
			req:         CheckRequest{IP: "2.125.160.216", AllowedCountries: []string{"gb"}},
			wantAllowed: true,
			wantCountry: "GB",
		},
		{
			name:   "address without a country",
			lookup: &mockLookup{country: ""},
			req:    CheckRequest{IP: "1.2.3.4", AllowedCountries: []string{""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := postCheck(t, setupRouter(tt.lookup), tt.req)

			if code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", code)
			}
			if resp.Allowed != tt.wantAllowed {
				t.Errorf("expected allowed to be %v", tt.wantAllowed)
			}
			if resp.Country != tt.wantCountry {
				t.Errorf("expected country %q, got %q", tt.wantCountry, resp.Country)
			}
			if resp.Error != "" {
				t.Errorf("expected empty error, got %s", resp.Error)
			}
		})
	}
}

func TestCheck_BadRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      any
		wantError string
	}{
		{
			name:      "invalid ip",
			body:      map[string]any{"ip": "not-an-ip", "allowed_countries": []string{"US"}},
			wantError: "invalid IP address",
		},
		{
			name:      "zoned ipv6",
			body:      CheckRequest{IP: "fe80::1%eth0", AllowedCountries: []string{"US"}},
			wantError: "invalid IP address",
		},
		{name: "missing ip", body: map[string]any{"allowed_countries": []string{"US"}}},
		{name: "missing allowed countries", body: map[string]any{"ip": "1.2.3.4"}},
		{name: "empty allowed countries", body: map[string]any{"ip": "1.2.3.4", "allowed_countries": []string{}}},
		{name: "invalid json", body: "{bad json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := postCheck(t, setupRouter(&mockLookup{country: "US"}), tt.body)

			if code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", code)
			}
			if tt.wantError != "" && resp.Error != tt.wantError {
				t.Errorf("expected %q error, got %q", tt.wantError, resp.Error)
			}
			if resp.Allowed {
				t.Error("expected allowed to be false")
			}
		})
	}
}

func TestCheck_LookupError(t *testing.T) {
	router := setupRouter(&mockLookup{err: fmt.Errorf("db failure")})

	code, resp := postCheck(t, router, CheckRequest{IP: "1.2.3.4", AllowedCountries: []string{"US"}})

	if code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", code)
	}
	if resp.Error != "lookup failed" {
		t.Errorf("expected 'lookup failed' error, got %q", resp.Error)
	}
}
