/*
Package cli facilitates building command-line applications around the vehicle API client. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package) and environment variable equivalents.

The package uses [keyring]'s platform-agnostic interface for storing OAuth tokens in an
OS-dependent credential store.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for credentials, token storage, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.LoadCredentials(); err != nil {
		panic(err)                    // Prompts for passwords if needed
	}

	// Logs in and fetches the account's vehicle list. Fails if the combination of command-line
	// flags and environment variables does not include a usable credential.
	acct, err := config.Account(ctx)
	if err != nil {
		panic(err)
	}
	defer config.UpdateCachedToken(acct)

Alternatively, you can use a [Flag] mask to control what [Config] fields are populated. Note that
config.Flags must be set before calling [flag.Parse] or [Config.ReadFromEnvironment]:

	config, err = NewConfig(FlagCredentials | FlagTokenFile) // No -base-url or -proxy flags.
	config, err = NewConfig(FlagTokenFile)                   // Token-based login only.
*/
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/99designs/keyring"

	"github.com/LukeDurrant/teslajson/internal/log"
	"github.com/LukeDurrant/teslajson/pkg/account"
	"github.com/LukeDurrant/teslajson/pkg/token"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvTeslaEmail        = "TESLA_EMAIL"
	EnvTeslaPassword     = "TESLA_PASSWORD"
	EnvTeslaAccessToken  = "TESLA_ACCESS_TOKEN"
	EnvTeslaClientID     = "TESLA_CLIENT_ID"
	EnvTeslaClientSecret = "TESLA_CLIENT_SECRET"
	EnvTeslaTokenName    = "TESLA_TOKEN_NAME"
	EnvTeslaTokenFile    = "TESLA_TOKEN_FILE"
	EnvTeslaBaseURL      = "TESLA_BASE_URL"
	EnvTeslaAPIPath      = "TESLA_API_PATH"
	EnvTeslaProxyURL     = "TESLA_PROXY_URL"
	EnvTeslaProxyUser    = "TESLA_PROXY_USER"
	EnvTeslaProxyPass    = "TESLA_PROXY_PASSWORD"
	EnvTeslaUserAgent    = "TESLA_USER_AGENT"
	EnvTeslaKeyringType  = "TESLA_KEYRING_TYPE"
	EnvTeslaKeyringPass  = "TESLA_KEYRING_PASSWORD"
	EnvTeslaKeyringPath  = "TESLA_KEYRING_PATH"
	EnvTeslaKeyringDebug = "TESLA_KEYRING_DEBUG"
	EnvVerbose           = "TESLA_VERBOSE"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagCredentials Flag = 1 // Enable email/password and static access token options.
	FlagTokenFile   Flag = 2 // Enable token file and system keyring options.
	FlagTransport   Flag = 4 // Enable base URL and egress proxy options.
	FlagAll         Flag = FlagCredentials | FlagTokenFile | FlagTransport
)

// ErrKeyNotFound is returned when the requested entry is not present in the system keyring.
var ErrKeyNotFound = keyring.ErrKeyNotFound

// Config fields determine how a client authenticates to the vehicle API.
type Config struct {
	Flags Flag // Controls which set of environment variables/CLI flags to use.

	Email       string
	Password    string
	AccessToken string // Static access token; used verbatim and never refreshed.

	// ClientID and ClientSecret override the OAuth client bundle baked into the library.
	ClientID     string
	ClientSecret string

	KeyringTokenName string // Entry name for the OAuth token in the system keyring
	TokenFilename    string

	BaseURL string
	APIPath string

	ProxyURL      string
	ProxyUser     string
	ProxyPassword string

	UserAgent string

	Backend     keyring.Config
	BackendType backendType
	Debug       bool // Enable keyring debug messages

	password   *string
	savedToken *token.Token
	acct       *account.Account
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	if c.Flags.isSet(FlagCredentials) {
		flag.StringVar(&c.Email, "email", "", "Owner account email `address`. Defaults to $TESLA_EMAIL. The password is read from $TESLA_PASSWORD or prompted for.")
		flag.StringVar(&c.ClientID, "client-id", "", "OAuth client `id`. Defaults to $TESLA_CLIENT_ID.")
	}
	if c.Flags.isSet(FlagTokenFile) {
		flag.StringVar(&c.KeyringTokenName, "token-name", "", "System keyring `name` for OAuth token. Defaults to $TESLA_TOKEN_NAME.")
		flag.StringVar(&c.TokenFilename, "token-file", "", "`File` holding OAuth token JSON; rewritten after each refresh. Defaults to $TESLA_TOKEN_FILE.")

		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $TESLA_KEYRING_TYPE.")
		flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
	if c.Flags.isSet(FlagTransport) {
		flag.StringVar(&c.BaseURL, "base-url", "", "API base `URL`. Defaults to $TESLA_BASE_URL, then the public endpoint.")
		flag.StringVar(&c.ProxyURL, "proxy", "", "Egress proxy `URL`. Defaults to $TESLA_PROXY_URL.")
	}
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if c.Flags.isSet(FlagCredentials) {
		if c.Email == "" {
			c.Email = os.Getenv(EnvTeslaEmail)
			log.Debug("Set email to '%s'", c.Email)
		}
		if c.Password == "" {
			c.Password = os.Getenv(EnvTeslaPassword)
			if c.Password != "" {
				log.Debug("Set password from environment")
			}
		}
		if c.AccessToken == "" {
			c.AccessToken = os.Getenv(EnvTeslaAccessToken)
			if c.AccessToken != "" {
				log.Debug("Set access token from environment")
			}
		}
		if c.ClientID == "" {
			c.ClientID = os.Getenv(EnvTeslaClientID)
			log.Debug("Set client id to '%s'", c.ClientID)
		}
		if c.ClientSecret == "" {
			c.ClientSecret = os.Getenv(EnvTeslaClientSecret)
			if c.ClientSecret != "" {
				log.Debug("Set client secret from environment")
			}
		}
	}
	if c.Flags.isSet(FlagTokenFile) {
		if c.KeyringTokenName == "" && c.TokenFilename == "" {
			c.KeyringTokenName = os.Getenv(EnvTeslaTokenName)
			log.Debug("Set OAuth token name to '%s'", c.KeyringTokenName)

			c.TokenFilename = os.Getenv(EnvTeslaTokenFile)
			log.Debug("Set OAuth token file to '%s'", c.TokenFilename)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvTeslaKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvTeslaKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring password from environment")
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvTeslaKeyringPath)
			log.Debug("Set keyring file path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvTeslaKeyringDebug)
			log.Debug("Set keyring debug logging to '%v'", c.Debug)
		}
	}
	if c.Flags.isSet(FlagTransport) {
		if c.BaseURL == "" {
			c.BaseURL = os.Getenv(EnvTeslaBaseURL)
			log.Debug("Set base URL to '%s'", c.BaseURL)
		}
		if c.APIPath == "" {
			c.APIPath = os.Getenv(EnvTeslaAPIPath)
			log.Debug("Set API path to '%s'", c.APIPath)
		}
		if c.ProxyURL == "" {
			c.ProxyURL = os.Getenv(EnvTeslaProxyURL)
			log.Debug("Set proxy URL to '%s'", c.ProxyURL)
		}
		if c.ProxyUser == "" {
			c.ProxyUser = os.Getenv(EnvTeslaProxyUser)
		}
		if c.ProxyPassword == "" {
			c.ProxyPassword = os.Getenv(EnvTeslaProxyPass)
		}
		if c.UserAgent == "" {
			c.UserAgent = os.Getenv(EnvTeslaUserAgent)
		}
	}
}

// LoadCredentials resolves the credential sources that may require user interaction: the system
// keyring entry named by KeyringTokenName and, as a last resort, an interactive password prompt.
// Call this method before [Config.Account] to prevent interactive prompts from counting against
// connection timeouts.
func (c *Config) LoadCredentials() error {
	if c.Flags.isSet(FlagTokenFile) && c.KeyringTokenName != "" && c.TokenFilename == "" {
		saved, err := c.LoadTokenFromKeyring()
		if err == nil {
			c.savedToken = saved
		} else if err != ErrKeyNotFound {
			return err
		}
	}
	if c.Flags.isSet(FlagCredentials) && c.needsPassword() {
		password, err := readPassword(fmt.Sprintf("Password for %s", c.Email))
		if err != nil {
			return err
		}
		c.Password = password
	}
	return nil
}

// needsPassword reports whether the password grant is the only remaining way to obtain a token.
func (c *Config) needsPassword() bool {
	if c.Email == "" || c.Password != "" || c.AccessToken != "" || c.savedToken != nil {
		return false
	}
	if c.TokenFilename != "" {
		if _, err := token.ImportFromFile(c.TokenFilename); err == nil {
			return false
		}
	}
	return true
}

// Account logs into the configured account and fetches its vehicle list. The Account is cached;
// subsequent calls return the same value.
func (c *Config) Account(ctx context.Context) (*account.Account, error) {
	if c.acct != nil {
		return c.acct, nil
	}
	acct, err := account.New(ctx, account.Options{
		Email:         c.Email,
		Password:      c.Password,
		AccessToken:   c.AccessToken,
		Token:         c.savedToken,
		TokenFilename: c.TokenFilename,
		Config: account.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			BaseURL:      c.BaseURL,
			APIPath:      c.APIPath,
		},
		ProxyURL:      c.ProxyURL,
		ProxyUser:     c.ProxyUser,
		ProxyPassword: c.ProxyPassword,
		UserAgent:     c.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	c.acct = acct
	return acct, nil
}

// UpdateCachedToken writes the account's current OAuth state back to the keyring entry it was
// loaded from.
//
// If c.KeyringTokenName is not set or the token has not changed since it was loaded, then this
// method does nothing. Errors are logged rather than returned; the refreshed token remains usable
// in memory.
func (c *Config) UpdateCachedToken(acct *account.Account) {
	if acct == nil || c.KeyringTokenName == "" {
		return
	}
	current := acct.Token()
	if current == nil {
		// Static access tokens are never refreshed, so there is nothing to save.
		return
	}
	if c.savedToken != nil && *c.savedToken == *current {
		return
	}
	if err := c.SaveTokenToKeyring(current); err != nil {
		log.Error("Error updating keyring token: %s", err)
		return
	}
	c.savedToken = current
}
