// Package protocol defines the error surface shared by the REST client packages.
package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a request that might have been
	// executed. For example, if a client times out while waiting for a response, then the client
	// cannot tell if the command was received. (Not all timeouts mean the command MayHaveSucceeded,
	// so the common Timeout() error interface is not appropriate here).
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition. For
	// example, it's not unusual for the API to return errors while the car is in the process of
	// waking from sleep and the services responsible for executing the command are not yet running.
	Temporary() bool
}

var (
	// ErrNoCredentials indicates the client has no remaining way to obtain a token: no static
	// access token, no refresh token, and no email/password pair.
	ErrNoCredentials = errors.New("no credentials available for authentication")
	// ErrNotFound indicates the account has no vehicle matching the query.
	ErrNotFound = errors.New("no vehicle found")
	// ErrVehicleUnavailable indicates the vehicle is offline or asleep and must be woken before it
	// can execute commands.
	ErrVehicleUnavailable = NewError("vehicle unavailable: vehicle is offline or asleep", false, true)
	// ErrResponseTooLong indicates the server response exceeded the maximum supported length.
	ErrResponseTooLong = NewError("response exceeds maximum length", true, true)
	// ErrBadResponse indicates the server reply was missing a required field.
	ErrBadResponse = errors.New("invalid response")
)

type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// HttpError wraps a non-2xx response from the API or the OAuth endpoint.
type HttpError struct {
	Code    int
	Message string
}

func (e *HttpError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *HttpError) MayHaveSucceeded() bool {
	if e.Code >= 400 && e.Code < 500 {
		return false
	}
	return e.Code != http.StatusServiceUnavailable
}

func (e *HttpError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusMisdirectedRequest
}

// AuthError indicates the OAuth endpoint rejected the client's credentials or the token request
// failed in transit. Check the wrapped error for the underlying cause.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) MayHaveSucceeded() bool {
	return false
}

func (e *AuthError) Temporary() bool {
	return Temporary(e.Err)
}

// DecodeError indicates a response body could not be interpreted as JSON in its declared charset.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "unable to parse server response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) MayHaveSucceeded() bool {
	return true
}

func (e *DecodeError) Temporary() bool {
	return false
}

// ConfigError indicates the client configuration is incomplete or malformed, such as an invalid
// base or proxy URL.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid client configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) MayHaveSucceeded() bool {
	return false
}

func (e *ConfigError) Temporary() bool {
	return false
}

// TokenFileError indicates the on-disk token cache could not be read or written. Read failures at
// construction are logged and recoverable; write failures after a refresh are returned to the
// caller, who may inspect the error with errors.As and elect to continue with the in-memory token.
type TokenFileError struct {
	Path string
	Err  error
}

func (e *TokenFileError) Error() string {
	return fmt.Sprintf("token file %s: %s", e.Path, e.Err)
}

func (e *TokenFileError) Unwrap() error {
	return e.Err
}

func (e *TokenFileError) MayHaveSucceeded() bool {
	return true
}

func (e *TokenFileError) Temporary() bool {
	return false
}

// MayHaveSucceeded returns true if err indicates the request may have been executed but the client
// did not receive a confirmation from the server.
func MayHaveSucceeded(err error) bool {
	if commErr, ok := err.(Error); ok && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err indicates the request failed due to possibly transient conditions
// that do not require user action to resolve.
func Temporary(err error) bool {
	if commErr, ok := err.(Error); ok && commErr.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the client should retry the request that triggered an error. The
// library itself never retries; this is advisory for callers.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(Error); ok {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}
