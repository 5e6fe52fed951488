package httpc

import (
	"context"
	"net/http"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestNewClientTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultTimeout},
		{-time.Second, DefaultTimeout},
		{5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		c := NewClient(tt.in)
		if c.Timeout != tt.want {
			t.Errorf("NewClient(%v).Timeout = %v, want %v", tt.in, c.Timeout, tt.want)
		}
		if c.Transport == nil {
			t.Errorf("NewClient(%v) has no transport", tt.in)
		}
	}
}

func TestOAuthContextCarriesClient(t *testing.T) {
	c := NewClient(time.Second)
	ctx := OAuthContext(context.Background(), c)
	got, ok := ctx.Value(oauth2.HTTPClient).(*http.Client)
	if !ok || got != c {
		t.Fatalf("context client = %v, want %v", got, c)
	}

	ctx = OAuthContext(context.Background(), nil)
	if _, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); !ok {
		t.Fatal("nil client should fall back to a default client")
	}
}
