// Package rest implements the HTTP and JSON plumbing shared by the token and account packages.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/LukeDurrant/teslajson/internal/log"
	"github.com/LukeDurrant/teslajson/pkg/protocol"
)

// MaxResponseLength caps the number of response body bytes read from the server. Longer responses
// result in protocol.ErrResponseTooLong.
const MaxResponseLength = 100000

func ReadWithContext(ctx context.Context, r io.Reader, p []byte) ([]byte, error) {
	bytesRead := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := r.Read(p[bytesRead:])
		bytesRead += n
		if err == io.EOF {
			return p[:bytesRead], nil
		}
		if err != nil {
			return p[:bytesRead], err
		}
		if bytesRead == len(p) {
			return p[:bytesRead], nil
		}
	}
}

// DecodeJSON interprets body in the charset declared by contentType, defaulting to UTF-8, and
// unmarshals the result into dst. Numbers decode as json.Number so 64-bit vehicle IDs survive
// the trip through interface{} values intact.
func DecodeJSON(body []byte, contentType string, dst interface{}) error {
	text, err := decodeCharset(body, contentType)
	if err != nil {
		return &protocol.DecodeError{Err: err}
	}
	decoder := json.NewDecoder(bytes.NewReader(text))
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		return &protocol.DecodeError{Err: err}
	}
	return nil
}

func decodeCharset(body []byte, contentType string) ([]byte, error) {
	if contentType == "" {
		return body, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Malformed header. Fall back to UTF-8 as if the parameter were absent.
		return body, nil
	}
	name := params["charset"]
	if name == "" || strings.EqualFold(name, "utf-8") {
		return body, nil
	}
	encoding, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return encoding.NewDecoder().Bytes(body)
}

// SendFormRequest issues a single request to url and decodes the JSON reply into dst. A nil form
// sends a GET request with no payload; a non-nil form, even an empty one, sends a form-encoded
// POST. The authHeader is omitted when empty, which is how the OAuth endpoint is called.
//
// There is no retry loop. Transport failures, non-200 statuses, and decode failures all surface
// to the caller immediately.
func SendFormRequest(ctx context.Context, client *http.Client, userAgent, authHeader, url string, form url.Values, dst interface{}) error {
	method := http.MethodGet
	var body io.Reader
	if form != nil {
		method = http.MethodPost
		body = strings.NewReader(form.Encode())
	}
	log.Debug("Sending %s request to %s", method, url)
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
	}

	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Accept", "*/*")
	if form != nil {
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if authHeader != "" {
		request.Header.Set("Authorization", authHeader)
	}

	result, err := client.Do(request)
	if err != nil {
		return &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
	}
	defer result.Body.Close()

	raw := make([]byte, MaxResponseLength+1)
	raw, err = ReadWithContext(ctx, result.Body, raw)
	if err != nil {
		return &protocol.CommandError{Err: err, PossibleSuccess: true, PossibleTemporary: false}
	}
	if len(raw) == MaxResponseLength+1 {
		return protocol.ErrResponseTooLong
	}

	log.Debug("Server returned %d: %s: %s", result.StatusCode, http.StatusText(result.StatusCode), raw)
	switch result.StatusCode {
	case http.StatusOK:
		return DecodeJSON(raw, result.Header.Get("Content-Type"), dst)
	case http.StatusServiceUnavailable:
		return protocol.ErrVehicleUnavailable
	case http.StatusRequestTimeout:
		if bytes.Contains(raw, []byte("vehicle unavailable")) {
			return protocol.ErrVehicleUnavailable
		}
	}
	return &protocol.HttpError{Code: result.StatusCode, Message: string(raw)}
}
