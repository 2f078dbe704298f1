// Package token manages OAuth bearer tokens for the vehicle API.
//
// A [Manager] owns the account's credentials and its current token, and decides when a refresh is
// needed. Clients call [Manager.EnsureValid] before every request; the common path returns the
// cached token with no network traffic. Tokens are refreshed a full [SafetyMargin] ahead of their
// nominal expiry, so a request never goes out with a token that is about to lapse mid-flight.
//
// Three kinds of credentials are supported. A static access token takes precedence over
// everything else: it is used verbatim, never refreshed, and disables OAuth traffic entirely.
// Otherwise the Manager prefers a refresh token, loaded from a persisted token file or seeded
// directly, and falls back to an email and password pair. A Manager constructed around a token
// file rewrites the file after every successful grant, so a later process can resume the session
// without re-authenticating.
//
// Token files contain credentials. If a Token is exported using its [Token.Export] or
// [Token.ExportToFile] methods, access controls should be used to prevent third parties from
// reading or tampering with the data.
package token
