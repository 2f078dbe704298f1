package token

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/LukeDurrant/teslajson/internal/log"
	"github.com/LukeDurrant/teslajson/internal/rest"
	"github.com/LukeDurrant/teslajson/pkg/protocol"
)

// Config carries everything a Manager needs to obtain and maintain a token.
type Config struct {
	// ClientID and ClientSecret identify this application to the OAuth endpoint.
	ClientID     string
	ClientSecret string

	// Email and Password enable the password grant.
	Email    string
	Password string

	// AccessToken puts the Manager in static mode: the token is used as-is, treated as
	// never-expiring, and no OAuth request is ever issued.
	AccessToken string

	// RefreshToken seeds the refresh grant when no token file is available.
	RefreshToken string

	// Seed provides previously obtained OAuth state from an external store, such as a system
	// keyring. A token file takes priority when both are configured.
	Seed *Token

	// Filename, if set, names a JSON token file that is loaded once at construction and rewritten
	// in full after every successful grant.
	Filename string

	// URL is the token endpoint, typically base URL + /oauth/token.
	URL string

	// Client is the HTTP client used for token requests. Defaults to http.DefaultClient.
	Client *http.Client

	// UserAgent is sent with token requests.
	UserAgent string
}

// Manager guarantees that every outgoing request carries a currently-valid bearer token,
// refreshing lazily and persisting state if configured to do so.
type Manager struct {
	cfg    Config
	static bool

	mu      sync.Mutex
	current *Token
}

// NewManager prepares a Manager from config. Construction never performs network I/O; the first
// token request happens on the first EnsureValid call that finds no valid token.
//
// A missing or unparsable token file is a warning, not an error. The Manager falls through to
// credential-based authentication on first use.
func NewManager(config Config) *Manager {
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	m := &Manager{cfg: config}
	if config.AccessToken != "" {
		m.static = true
		subject, expiresAt := IntrospectAccessToken(config.AccessToken)
		if subject != "" {
			log.Debug("Using static access token for %s", subject)
		}
		if expiresAt != nil && time.Now().After(*expiresAt) {
			log.Warning("Static access token expired at %s; requests will likely be rejected", expiresAt.Format(time.RFC3339))
		}
		return m
	}
	if config.Filename != "" {
		token, err := ImportFromFile(config.Filename)
		if err != nil {
			log.Warning("Could not load tokens from %s: %s (pressing on in hopes of alternate authentication)", config.Filename, err)
		} else {
			m.current = token
		}
	}
	if m.current == nil && config.Seed != nil {
		seed := *config.Seed
		m.current = &seed
	}
	return m
}

// EnsureValid returns a bearer token that is valid at the time of the call, performing a token
// request first if the cached token is missing or has aged past its safety margin.
//
// The check-then-refresh sequence runs under a mutex, so concurrent callers racing an expired
// token produce a single token request; the losers of the race observe the fresh token and
// return without further I/O.
func (m *Manager) EnsureValid(ctx context.Context) (string, error) {
	if m.static {
		return m.cfg.AccessToken, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Valid(time.Now()) {
		return m.current.AccessToken, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.current.AccessToken, nil
}

// Token returns a copy of the most recently obtained token, or nil if none is held. Mutating the
// copy has no effect on the Manager.
func (m *Manager) Token() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	token := *m.current
	return &token
}

// Static returns true if the Manager was constructed around a fixed access token.
func (m *Manager) Static() bool {
	return m.static
}

// grantBody assembles the form for the next token request. A known refresh token takes priority
// over the password grant.
func (m *Manager) grantBody() (url.Values, error) {
	refreshToken := m.cfg.RefreshToken
	if m.current != nil && m.current.RefreshToken != "" {
		refreshToken = m.current.RefreshToken
	}
	if refreshToken != "" {
		return url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {m.cfg.ClientID},
			"client_secret": {m.cfg.ClientSecret},
			"refresh_token": {refreshToken},
		}, nil
	}
	if m.cfg.Email != "" || m.cfg.Password != "" {
		return url.Values{
			"grant_type":    {"password"},
			"client_id":     {m.cfg.ClientID},
			"client_secret": {m.cfg.ClientSecret},
			"email":         {m.cfg.Email},
			"password":      {m.cfg.Password},
		}, nil
	}
	return nil, protocol.ErrNoCredentials
}

// refreshLocked performs one token request and replaces the cached state. Callers must hold m.mu.
func (m *Manager) refreshLocked(ctx context.Context) error {
	form, err := m.grantBody()
	if err != nil {
		return err
	}
	log.Debug("Requesting token with grant type %s", form.Get("grant_type"))
	var fresh Token
	if err := rest.SendFormRequest(ctx, m.cfg.Client, m.cfg.UserAgent, "", m.cfg.URL, form, &fresh); err != nil {
		return &protocol.AuthError{Err: err}
	}
	if fresh.AccessToken == "" {
		return &protocol.AuthError{Err: protocol.ErrBadResponse}
	}
	if fresh.CreatedAt == 0 {
		fresh.CreatedAt = time.Now().Unix()
	}
	m.current = &fresh
	log.Debug("Obtained access token, valid until %s", fresh.ExpiresAt().Format(time.RFC3339))
	if m.cfg.Filename != "" {
		if err := fresh.ExportToFile(m.cfg.Filename); err != nil {
			// The fresh token stays in memory, so the caller may elect to continue at reduced
			// durability after inspecting the error with errors.As.
			return &protocol.TokenFileError{Path: m.cfg.Filename, Err: err}
		}
	}
	return nil
}
