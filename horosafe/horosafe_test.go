package horosafe

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/feed.xml", false},
		{"http://example.com/rss", false},
		{"ftp://example.com/feed", true},     // bad scheme
		{"file:///etc/passwd", true},         // bad scheme
		{"http://127.0.0.1/feed", true},      // loopback
		{"http://10.0.0.1/internal", true},   // private
		{"http://192.168.1.1/rss", true},     // private
		{"http://[::1]/atom", true},          // IPv6 loopback
		{"http://169.254.169.254/meta", true}, // link-local metadata
		{"http:///nohost", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestRedirectPolicy(t *testing.T) {
	// WHAT: redirects are re-validated and capped.
	// WHY: a public feed URL must not bounce the fetcher onto localhost.
	policy := RedirectPolicy(ValidateURL)

	req := &http.Request{URL: mustURL(t, "http://127.0.0.1/private")}
	if err := policy(req, nil); !errors.Is(err, ErrSSRF) {
		t.Fatalf("redirect to loopback: err=%v, want ErrSSRF", err)
	}

	via := make([]*http.Request, MaxRedirects)
	req = &http.Request{URL: mustURL(t, "https://example.com/next")}
	if err := policy(req, via); err == nil {
		t.Fatal("expected error after too many redirects")
	}

	if err := RedirectPolicy(nil)(req, nil); err != nil {
		t.Fatalf("nil validator: unexpected error %v", err)
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	_, err = LimitedReadAll(strings.NewReader(data), 50)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversized read: err=%v, want ErrTooLarge", err)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"100.64.1.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("failed to parse IP %q", tt.ip)
		}
		if got := isPrivateIP(ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}
