package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultRedirectURL uses the IPv4 loopback address Spotify requires for
// local apps. See https://developer.spotify.com/documentation/web-api/concepts/redirect-uri
const DefaultRedirectURL = "http://127.0.0.1:8080/callback"

const loginTimeout = 2 * time.Minute

var (
	// ErrMissingCredentials is returned when the client id or secret is not configured.
	ErrMissingCredentials = errors.New("missing Spotify client id or secret (SPOTIFY_ID, SPOTIFY_SECRET)")

	// ErrBadRedirectURL is returned for redirect URLs the local callback server cannot serve.
	ErrBadRedirectURL = errors.New("redirect URL must be http on a loopback address with a path")

	ErrLoginTimeout  = errors.New("timed out waiting for the Spotify login")
	ErrStateMismatch = errors.New("OAuth state mismatch")
	ErrLoginRefused  = errors.New("spotify login refused")
)

// Config holds the Spotify app credentials and where to keep the token.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string    // Defaults to DefaultRedirectURL
	TokenPath    string    // Defaults to DefaultTokenPath
	Out          io.Writer // Receives the login URL; defaults to stderr
	Logger       *slog.Logger
}

// Authenticator signs in to Spotify with permission to create playlists.
type Authenticator struct {
	clientID string
	oauth    *spotifyauth.Authenticator
	cache    *TokenCache
	redirect *url.URL
	out      io.Writer
	logger   *slog.Logger
}

// New validates cfg and returns an Authenticator. It does not contact Spotify.
func New(cfg Config) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	redirect, err := parseRedirect(cfg.RedirectURL)
	if err != nil {
		return nil, err
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Authenticator{
		clientID: cfg.ClientID,
		oauth: spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithRedirectURL(redirect.String()),
			spotifyauth.WithScopes(
				spotifyauth.ScopePlaylistModifyPublic,
				spotifyauth.ScopePlaylistModifyPrivate,
			),
		),
		cache:    NewTokenCache(cfg.TokenPath),
		redirect: redirect,
		out:      cfg.Out,
		logger:   cfg.Logger,
	}, nil
}

func parseRedirect(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRedirectURL, err)
	}
	ip := net.ParseIP(u.Hostname())
	if u.Scheme != "http" || u.Path == "" || ip == nil || !ip.IsLoopback() {
		return nil, fmt.Errorf("%w: %q", ErrBadRedirectURL, raw)
	}
	return u, nil
}

// Authenticate returns a Spotify client. A cached token Spotify still
// accepts is reused; otherwise the operator is sent through the login page.
func (a *Authenticator) Authenticate(ctx context.Context) (*spotify.Client, error) {
	client, err := a.cachedClient(ctx)
	if err != nil || client != nil {
		return client, err
	}

	token, err := a.login(ctx)
	if err != nil {
		return nil, err
	}
	a.save(token)
	return a.client(ctx, token), nil
}

// Logout forgets the cached token so the next Authenticate logs in again.
func (a *Authenticator) Logout() error {
	return a.cache.Delete()
}

func (a *Authenticator) client(ctx context.Context, token *oauth2.Token) *spotify.Client {
	return spotify.New(a.oauth.Client(ctx, token), spotify.WithRetry(true))
}

func (a *Authenticator) cachedClient(ctx context.Context) (*spotify.Client, error) {
	token, err := a.cache.Load(a.clientID)
	if err != nil || token == nil {
		return nil, err
	}

	client := a.client(ctx, token)
	if _, err := client.CurrentUser(ctx); err != nil {
		a.logger.Info("cached Spotify token rejected, logging in again", "error", err)
		return nil, nil
	}
	// The oauth2 transport refreshes expired tokens in place.
	if fresh, err := client.Token(); err == nil && fresh.AccessToken != token.AccessToken {
		a.save(fresh)
	}
	return client, nil
}

func (a *Authenticator) save(token *oauth2.Token) {
	if err := a.cache.Save(a.clientID, token); err != nil {
		a.logger.Warn("caching Spotify token", "path", a.cache.Path(), "error", err)
	}
}

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// login serves the redirect URL until Spotify calls back once.
func (a *Authenticator) login(ctx context.Context) (*oauth2.Token, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	ln, err := net.Listen("tcp", a.redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listening for the Spotify callback: %w", err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(a.redirect.Path, a.callbackHandler(state, results))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(a.out, "Open this URL to let converge create playlists:\n\n  %s\n\n", a.oauth.AuthURL(state))

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	select {
	case r := <-results:
		return r.token, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLoginTimeout
		}
		return nil, ctx.Err()
	}
}

// callbackHandler exchanges the authorization code for state and reports
// the first outcome on results. Later requests get a response but are not
// reported.
func (a *Authenticator) callbackHandler(state string, results chan<- callbackResult) http.Handler {
	var once sync.Once
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := a.exchange(r, state)
		switch {
		case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrLoginRefused):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			fmt.Fprintln(w, "converge is signed in to Spotify. You can close this tab.")
		}
		once.Do(func() { results <- callbackResult{token: token, err: err} })
	})
}

func (a *Authenticator) exchange(r *http.Request, state string) (*oauth2.Token, error) {
	q := r.URL.Query()
	if q.Get("state") != state {
		return nil, ErrStateMismatch
	}
	if msg := q.Get("error"); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrLoginRefused, msg)
	}
	token, err := a.oauth.Token(r.Context(), state, r)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token, nil
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
