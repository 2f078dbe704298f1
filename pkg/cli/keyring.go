package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/LukeDurrant/teslajson/pkg/token"
)

const (
	keyringServiceName  = "com.teslajson.auth"
	keyringTokenService = "oauthtoken"
	keyringDirectory    = "~/.teslajson_keys"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

// readPassword prompts on the controlling terminal with echo disabled. Prompts go to stdout when
// it is a terminal, falling back to stderr so prompts stay visible when stdout is redirected.
func readPassword(prompt string) (string, error) {
	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		} else {
			w = os.Stderr
		}
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(b), nil
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}
	password, err := readPassword(prompt)
	if err != nil {
		return "", err
	}
	c.password = &password
	return password, nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	return keyring.Open(c.Backend)
}

func (c *Config) fullTokenName() string {
	return keyringTokenService + "." + c.KeyringTokenName
}

// LoadTokenFromKeyring loads an OAuth token from the system keyring.
//
// The entry name must match the value provided to SaveTokenToKeyring. Returns ErrKeyNotFound when
// no token has been enrolled under that name.
func (c *Config) LoadTokenFromKeyring() (*token.Token, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return nil, err
	}

	item, err := kr.Get(c.fullTokenName())
	if err == keyring.ErrKeyNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("could not load token: %s", err)
	}
	return token.Import(bytes.NewReader(item.Data))
}

// SaveTokenToKeyring writes the account's OAuth token to the system keyring.
//
// The entry name identifies the OAuth token for future use with LoadTokenFromKeyring and does not
// necessarily need to match the system username.
func (c *Config) SaveTokenToKeyring(t *token.Token) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}

	var buffer bytes.Buffer
	if err := t.Export(&buffer); err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  c.fullTokenName(),
		Data: buffer.Bytes(),
	}); err != nil {
		return fmt.Errorf("failed to enroll token in keyring: %s", err)
	}
	return nil
}

// DeleteTokenFromKeyring removes the OAuth token from the system keyring.
func (c *Config) DeleteTokenFromKeyring() error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	return kr.Remove(c.fullTokenName())
}
