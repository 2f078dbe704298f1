// Package account logs into the vehicle API and dispatches authenticated requests.
package account

import (
	"context"
	_ "embed" // Used to embed version for use with user agent
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/LukeDurrant/teslajson/internal/log"
	"github.com/LukeDurrant/teslajson/internal/rest"
	"github.com/LukeDurrant/teslajson/pkg/protocol"
	"github.com/LukeDurrant/teslajson/pkg/token"
	"github.com/LukeDurrant/teslajson/pkg/vehicle"
)

var (
	//go:embed version.txt
	libraryVersion string
)

func buildUserAgent(app string) string {
	library := strings.TrimSpace("teslajson/" + libraryVersion)
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return library
	}
	path := strings.Split(build.Path, "/")
	if len(path) == 0 {
		return library
	}

	if app == "" {
		app = path[len(path)-1]
		var version string
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			version = build.Main.Version
		} else {
			for _, info := range build.Settings {
				if info.Key == "vcs.revision" {
					if len(info.Value) > 8 {
						version = info.Value[0:8]
					}
					break
				}
			}
		}

		if version != "" {
			app = fmt.Sprintf("%s/%s", app, version)
		}
	}

	return fmt.Sprintf("%s %s", app, library)
}

// Config identifies the application to the API and the OAuth endpoint.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	APIPath      string
}

// DefaultConfig returns the public API endpoints with a placeholder OAuth client. The deployer
// injects real client credentials through Options or the environment; they are not baked into
// code.
func DefaultConfig() Config {
	return Config{
		ClientID: "ownerapi",
		BaseURL:  "https://owner-api.teslamotors.com",
		APIPath:  "/api/1/",
	}
}

// Options configures a new Account.
//
// Credentials resolve in this order: AccessToken (used verbatim, never refreshed), TokenFilename
// (refresh grant from the persisted token), then Email and Password (password grant). Combining a
// token file with email and password keeps the file populated after logins.
type Options struct {
	Email    string
	Password string

	// AccessToken puts the account in static-token mode. No OAuth request is ever issued.
	AccessToken string

	// RefreshToken seeds the refresh grant when no token file is supplied.
	RefreshToken string

	// Token seeds the account with OAuth state persisted outside a token file, such as in a
	// system keyring. TokenFilename takes priority when both are set.
	Token *token.Token

	// TokenFilename names a JSON token file loaded at construction and rewritten in full after
	// every refresh. A missing or unreadable file logs a warning and falls through to Email and
	// Password.
	TokenFilename string

	// Config selects the API endpoints and OAuth client. The zero value means DefaultConfig.
	Config Config

	// ProxyURL routes all requests through a proxy. ProxyUser and ProxyPassword, when set, are
	// used for basic auth against the proxy; credentials embedded in the URL work as well.
	ProxyURL      string
	ProxyUser     string
	ProxyPassword string

	// UserAgent replaces the application product token in the User-Agent header. The library's
	// own token is always appended.
	UserAgent string

	// Client overrides the HTTP transport entirely. ProxyURL is ignored when Client is set.
	Client *http.Client
}

// Account allows interaction with the vehicle API on behalf of one logged-in user.
type Account struct {
	// The default UserAgent is constructed at login, but can be overridden.
	UserAgent string
	// Subject is the account identity extracted from the bearer token, when available.
	Subject string
	// Vehicles holds the account's vehicles as of login, in the order the API listed them.
	Vehicles []*vehicle.Vehicle

	cfg    Config
	tokens *token.Manager
	client *http.Client
}

// New logs in and returns an [Account] with its vehicle list populated. Construction performs
// network I/O: a valid token is obtained and the vehicle list is fetched before New returns, so
// any authentication or transport failure aborts construction. There is no partially initialized
// Account.
func New(ctx context.Context, opts Options) (*Account, error) {
	cfg := opts.Config
	defaults := DefaultConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.ClientID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.APIPath == "" {
		cfg.APIPath = defaults.APIPath
	}
	client := opts.Client
	if client == nil {
		var err error
		client, err = newHTTPClient(opts.ProxyURL, opts.ProxyUser, opts.ProxyPassword)
		if err != nil {
			return nil, err
		}
	}
	userAgent := buildUserAgent(opts.UserAgent)
	tokens := token.NewManager(token.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Email:        opts.Email,
		Password:     opts.Password,
		AccessToken:  opts.AccessToken,
		RefreshToken: opts.RefreshToken,
		Seed:         opts.Token,
		Filename:     opts.TokenFilename,
		URL:          strings.TrimSuffix(cfg.BaseURL, "/") + "/oauth/token",
		Client:       client,
		UserAgent:    userAgent,
	})
	account := &Account{
		UserAgent: userAgent,
		cfg:       cfg,
		tokens:    tokens,
		client:    client,
	}
	accessToken, err := tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}
	if subject, _ := token.IntrospectAccessToken(accessToken); subject != "" {
		account.Subject = subject
	}
	if err := account.RefreshVehicles(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

func newHTTPClient(proxyURL, proxyUser, proxyPassword string) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{}, nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, &protocol.ConfigError{Err: fmt.Errorf("proxy URL: %w", err)}
	}
	if proxyUser != "" {
		parsed.User = url.UserPassword(proxyUser, proxyPassword)
	}
	return &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(parsed)}}, nil
}

// RefreshVehicles re-fetches the account's vehicle list, replacing Vehicles.
func (a *Account) RefreshVehicles(ctx context.Context) error {
	reply, err := a.Get(ctx, "vehicles")
	if err != nil {
		return err
	}
	records, ok := reply["response"].([]interface{})
	if !ok {
		return fmt.Errorf("%w: vehicle list missing response field", protocol.ErrBadResponse)
	}
	vehicles := make([]*vehicle.Vehicle, 0, len(records))
	for _, entry := range records {
		record, ok := entry.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: vehicle list entry is %T", protocol.ErrBadResponse, entry)
		}
		car, err := vehicle.New(record, a)
		if err != nil {
			return err
		}
		vehicles = append(vehicles, car)
	}
	a.Vehicles = vehicles
	log.Debug("Account has %d vehicle(s)", len(vehicles))
	return nil
}

// VehicleByVIN returns the vehicle with the given VIN, or protocol.ErrNotFound.
func (a *Account) VehicleByVIN(vin string) (*vehicle.Vehicle, error) {
	for _, car := range a.Vehicles {
		if car.VIN() == vin {
			return car, nil
		}
	}
	return nil, protocol.ErrNotFound
}

// VehicleByID returns the vehicle with the given numeric API id, or protocol.ErrNotFound.
func (a *Account) VehicleByID(id int64) (*vehicle.Vehicle, error) {
	for _, car := range a.Vehicles {
		if car.ID() == id {
			return car, nil
		}
	}
	return nil, protocol.ErrNotFound
}

// Token returns a copy of the account's current OAuth state, or nil when running on a static
// access token. Callers use this to persist tokens in external stores.
func (a *Account) Token() *token.Token {
	return a.tokens.Token()
}

// Request sends one authenticated call to endpoint, relative to the configured API path. A nil
// data issues a GET; any non-nil data, including an empty form, issues a form-encoded POST. The
// token manager is consulted before every call, so a request never goes out with an expired
// bearer token.
//
// The decoded JSON reply is returned as-is, including any API-level error payload it embeds.
// Only transport-level failures become errors.
func (a *Account) Request(ctx context.Context, endpoint string, data url.Values) (map[string]interface{}, error) {
	accessToken, err := a.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}
	requestURL := a.endpointURL(endpoint)
	var reply map[string]interface{}
	if err := rest.SendFormRequest(ctx, a.client, a.UserAgent, "Bearer "+accessToken, requestURL, data, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Get fetches endpoint. Equivalent to Request with nil data.
func (a *Account) Get(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	return a.Request(ctx, endpoint, nil)
}

// Post sends data to endpoint. A nil data degrades to a GET; see Request.
func (a *Account) Post(ctx context.Context, endpoint string, data url.Values) (map[string]interface{}, error) {
	return a.Request(ctx, endpoint, data)
}

func (a *Account) endpointURL(endpoint string) string {
	base := strings.TrimSuffix(a.cfg.BaseURL, "/")
	path := a.cfg.APIPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return base + path + endpoint
}
