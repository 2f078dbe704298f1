// Utility for obtaining, importing, and inspecting OAuth tokens

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/LukeDurrant/teslajson/internal/log"
	"github.com/LukeDurrant/teslajson/pkg/cli"
	"github.com/LukeDurrant/teslajson/pkg/token"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usageText = `
Obtains an owner API OAuth token and saves it in the system keyring or a token file.

The login action performs a password grant with the configured email and stores the result. The
import action reads a previously exported token (JSON) from stdin or a file. The show action
prints a redacted summary of the stored token, and forget removes it from the keyring.

The type of keyring and the entry name are controlled by the command-line options below, or
through the corresponding environment variables.`

func cliUsage() {
	usage(flag.CommandLine.Output())
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s [OPTION...] login|import|show|forget [file]\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, usageText)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "OPTIONS:")
	flag.PrintDefaults()
}

func redact(s string) string {
	if len(s) <= 8 {
		return "..."
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func showToken(t *token.Token) {
	state := "valid"
	if !t.Valid(time.Now()) {
		state = "expired"
	}
	fmt.Printf("Access token:  %s\n", redact(t.AccessToken))
	fmt.Printf("Refresh token: %s\n", redact(t.RefreshToken))
	fmt.Printf("Expires:       %s (%s)\n", t.ExpiresAt().Format(time.RFC3339), state)
}

// loadStoredToken reads the token named by the configuration, preferring the keyring entry over
// the token file.
func loadStoredToken(config *cli.Config) (*token.Token, error) {
	if config.KeyringTokenName != "" {
		return config.LoadTokenFromKeyring()
	}
	if config.TokenFilename != "" {
		return token.ImportFromFile(config.TokenFilename)
	}
	return nil, fmt.Errorf("no token storage configured; use -token-name or -token-file")
}

// storeToken writes t to every configured destination and reports where it went. With no
// destination configured the token JSON goes to stdout so it can be redirected.
func storeToken(config *cli.Config, t *token.Token) error {
	stored := false
	if config.KeyringTokenName != "" {
		if err := config.SaveTokenToKeyring(t); err != nil {
			return err
		}
		fmt.Printf("Saved token to keyring entry %q\n", config.KeyringTokenName)
		stored = true
	}
	if config.TokenFilename != "" {
		if err := t.ExportToFile(config.TokenFilename); err != nil {
			return err
		}
		fmt.Printf("Saved token to %s\n", config.TokenFilename)
		stored = true
	}
	if !stored {
		return t.Export(os.Stdout)
	}
	return nil
}

func main() {
	returnCode := 1
	defer func() {
		os.Exit(returnCode)
	}()

	_ = godotenv.Load()

	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		writeErr("Failed to load credential configuration: %s", err)
		return
	}

	flag.Usage = cliUsage
	config.RegisterCommandLineFlags()
	flag.Parse()
	if config.Debug {
		log.SetLevel(log.LevelDebug)
	}
	config.ReadFromEnvironment()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		usage(os.Stderr)
		return
	}

	switch flag.Arg(0) {
	case "login":
		if err := config.LoadCredentials(); err != nil {
			writeErr("Error loading credentials: %s", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		acct, err := config.Account(ctx)
		if err != nil {
			writeErr("Login failed: %s", err)
			return
		}
		t := acct.Token()
		if t == nil {
			writeErr("Account uses a static access token; there is no OAuth state to store.")
			return
		}
		if err := storeToken(config, t); err != nil {
			writeErr("Error saving token: %s", err)
			return
		}
	case "import":
		var t *token.Token
		if flag.NArg() == 2 {
			t, err = token.ImportFromFile(flag.Arg(1))
		} else {
			t, err = token.Import(os.Stdin)
		}
		if err != nil {
			writeErr("Error reading token: %s", err)
			return
		}
		if config.KeyringTokenName == "" && config.TokenFilename == "" {
			writeErr("Must provide a destination with -token-name or -token-file (or $%s, $%s)",
				cli.EnvTeslaTokenName, cli.EnvTeslaTokenFile)
			return
		}
		if err := storeToken(config, t); err != nil {
			writeErr("Error saving token: %s", err)
			return
		}
	case "show":
		t, err := loadStoredToken(config)
		if err != nil {
			writeErr("Error loading token: %s", err)
			return
		}
		showToken(t)
	case "forget":
		if config.KeyringTokenName == "" {
			writeErr("Must provide the keyring entry to delete with -token-name or $%s", cli.EnvTeslaTokenName)
			return
		}
		if err := config.DeleteTokenFromKeyring(); err != nil {
			writeErr("Error deleting token: %s", err)
			return
		}
		fmt.Printf("Deleted keyring entry %q\n", config.KeyringTokenName)
	default:
		writeErr("Unrecognized action: %s", flag.Arg(0))
		writeErr("")
		usage(os.Stderr)
		return
	}
	returnCode = 0
}
