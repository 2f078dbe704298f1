package token

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SafetyMargin is subtracted from a token's nominal expiry so the client refreshes a full day
// before the server invalidates the token, rather than risk an expired-token request mid-flight.
const SafetyMargin = 24 * time.Hour

// Token holds the OAuth state returned by the token endpoint. The JSON encoding of a Token is
// also the on-disk token file format.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExpiresAt returns the moment the Token is no longer considered valid: CreatedAt plus ExpiresIn,
// less the SafetyMargin. The margin is applied unconditionally. A token issued with ExpiresIn
// shorter than the margin is therefore born expired and triggers a refresh on every use; callers
// provisioning short-lived tokens should expect that behavior rather than a clamped margin.
func (t *Token) ExpiresAt() time.Time {
	return time.Unix(t.CreatedAt+t.ExpiresIn, 0).Add(-SafetyMargin)
}

// Valid returns true if the Token can still be used at the given time.
func (t *Token) Valid(now time.Time) bool {
	if t == nil {
		return false
	}
	return !now.After(t.ExpiresAt())
}

// Import reads a Token using data in r.
// The data should previously have been generated using [Token.Export].
func Import(r io.Reader) (*Token, error) {
	var token Token
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

// ImportFromFile reads a Token from disk.
func ImportFromFile(filename string) (*Token, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized Token to w.
func (t *Token) Export(w io.Writer) error {
	return json.NewEncoder(w).Encode(t)
}

// ExportToFile writes a Token to disk, replacing any previous contents. The data goes to a
// temporary file in the same directory followed by a rename, so a crash cannot leave a truncated
// token file behind. Tokens are credentials; the file is created with mode 0600.
func (t *Token) ExportToFile(filename string) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(append(data, '\n')); err == nil {
		err = tmp.Chmod(0600)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, filename)
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// IntrospectAccessToken extracts best-effort metadata from a JWT-shaped access token. Legacy
// bearer tokens are opaque, but tokens minted by newer auth servers are JWTs carrying a subject
// and expiry. Returns zero values when accessToken is not a parsable JWT. The signature is NOT
// verified; the result is informational only and must not be used to make trust decisions.
func IntrospectAccessToken(accessToken string) (subject string, expiresAt *time.Time) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return "", nil
	}
	if claims.ExpiresAt != nil {
		expiresAt = &claims.ExpiresAt.Time
	}
	return claims.Subject, expiresAt
}
