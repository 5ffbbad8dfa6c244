package util

import (
	"net/http/httptest"
	"testing"
)

func TestNewTrustedProxies(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.10 ", ""})
	if err != nil {
		t.Fatalf("NewTrustedProxies: %v", err)
	}
	if trusted == nil {
		t.Fatal("expected non-nil set for valid entries")
	}
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected parse error")
	}
	empty, err := NewTrustedProxies(nil)
	if err != nil || empty != nil {
		t.Fatalf("expected nil set for no entries, got %v %v", empty, err)
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewTrustedProxies: %v", err)
	}

	cases := []struct {
		name    string
		remote  string
		xff     string
		realIP  string
		trusted *TrustedProxies
		want    string
	}{
		{
			name:   "untrusted peer wins over headers",
			remote: "198.51.100.10:4321",
			xff:    "203.0.113.5",
			realIP: "203.0.113.6",
			want:   "198.51.100.10",
		},
		{
			name:    "trusted peer honors forwarded-for",
			remote:  "10.0.0.20:4321",
			xff:     "203.0.113.5",
			trusted: trusted,
			want:    "203.0.113.5",
		},
		{
			name:    "chain stops at first untrusted hop",
			remote:  "10.0.0.20:4321",
			xff:     "203.0.113.5, 10.0.0.10",
			trusted: trusted,
			want:    "203.0.113.5",
		},
		{
			name:    "fully trusted chain yields leftmost hop",
			remote:  "10.0.0.20:4321",
			xff:     "10.0.0.5, 10.0.0.10",
			trusted: trusted,
			want:    "10.0.0.5",
		},
		{
			name:    "x-real-ip backs up an unusable forwarded-for",
			remote:  "10.0.0.20:4321",
			xff:     "garbage",
			realIP:  "203.0.113.7",
			trusted: trusted,
			want:    "203.0.113.7",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://aria.test/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
