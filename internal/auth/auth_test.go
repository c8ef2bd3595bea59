package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/oauth2"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := New(Config{
		ClientID:     "app",
		ClientSecret: "secret",
		TokenPath:    filepath.Join(t.TempDir(), "token.json"),
		Out:          io.Discard,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"no credentials", Config{}, ErrMissingCredentials},
		{"no secret", Config{ClientID: "app"}, ErrMissingCredentials},
		{"no client id", Config{ClientSecret: "secret"}, ErrMissingCredentials},
		{"https", Config{ClientID: "app", ClientSecret: "s", RedirectURL: "https://127.0.0.1:8080/callback"}, ErrBadRedirectURL},
		{"remote host", Config{ClientID: "app", ClientSecret: "s", RedirectURL: "http://example.com/callback"}, ErrBadRedirectURL},
		{"localhost name", Config{ClientID: "app", ClientSecret: "s", RedirectURL: "http://localhost:8080/callback"}, ErrBadRedirectURL},
		{"no path", Config{ClientID: "app", ClientSecret: "s", RedirectURL: "http://127.0.0.1:8080"}, ErrBadRedirectURL},
		{"unparsable", Config{ClientID: "app", ClientSecret: "s", RedirectURL: "http://[::1"}, ErrBadRedirectURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	a, err := New(Config{ClientID: "app", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := a.redirect.String(); got != DefaultRedirectURL {
		t.Errorf("redirect = %q, want %q", got, DefaultRedirectURL)
	}
	if want := filepath.Join(home, ".converge", "spotify-token.json"); a.cache.Path() != want {
		t.Errorf("token path = %q, want %q", a.cache.Path(), want)
	}
	if a.out == nil || a.logger == nil {
		t.Error("New() left Out or Logger unset")
	}
}

func TestNew_IPv6Loopback(t *testing.T) {
	a, err := New(Config{
		ClientID:     "app",
		ClientSecret: "secret",
		RedirectURL:  "http://[::1]:9000/spotify",
		TokenPath:    filepath.Join(t.TempDir(), "token.json"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.redirect.Host != "[::1]:9000" || a.redirect.Path != "/spotify" {
		t.Errorf("redirect = %v", a.redirect)
	}
}

func TestLogout(t *testing.T) {
	a := newTestAuthenticator(t)
	a.save(&oauth2.Token{AccessToken: "cached"})

	if tok, _ := a.cache.Load("app"); tok == nil {
		t.Fatal("token not cached under the client id")
	}
	if err := a.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if tok, err := a.cache.Load("app"); tok != nil || err != nil {
		t.Errorf("Load() after Logout = %+v, %v", tok, err)
	}
	if err := a.Logout(); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestCallbackHandler_Failures(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"wrong state", "?state=forged&code=abc", ErrStateMismatch},
		{"missing state", "?code=abc", ErrStateMismatch},
		{"access denied", "?state=expected&error=access_denied", ErrLoginRefused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuthenticator(t)
			results := make(chan callbackResult, 1)
			h := a.callbackHandler("expected", results)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			select {
			case r := <-results:
				if !errors.Is(r.err, tt.want) || r.token != nil {
					t.Errorf("result = %+v, want error %v", r, tt.want)
				}
			default:
				t.Fatal("handler reported nothing")
			}
		})
	}
}

func TestCallbackHandler_ReportsOnce(t *testing.T) {
	a := newTestAuthenticator(t)
	results := make(chan callbackResult, 1)
	h := a.callbackHandler("expected", results)

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=late", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	}

	<-results
	select {
	case r := <-results:
		t.Errorf("second result reported: %+v", r)
	default:
	}
}

func TestGenerateState(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		s, err := generateState()
		if err != nil {
			t.Fatalf("generateState() error = %v", err)
		}
		if len(s) != 32 {
			t.Errorf("state %q has length %d, want 32", s, len(s))
		}
		if seen[s] {
			t.Fatalf("state %q repeated", s)
		}
		seen[s] = true
	}
}
