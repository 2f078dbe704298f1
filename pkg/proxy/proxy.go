package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LukeDurrant/teslajson/internal/log"
	"github.com/LukeDurrant/teslajson/pkg/protocol"
)

const (
	// DefaultTimeout bounds the upstream round trip for a single proxied request.
	DefaultTimeout = 10 * time.Second

	maxRequestBodyBytes = 4096
	apiPathPrefix       = "/api/1/"
)

// Account is the subset of [account.Account] the proxy uses to reach the owner API.
type Account interface {
	// Get fetches an endpoint relative to the account's API path.
	Get(ctx context.Context, endpoint string) (map[string]interface{}, error)
	// Post sends a form-encoded POST to an endpoint relative to the account's API path.
	Post(ctx context.Context, endpoint string, data url.Values) (map[string]interface{}, error)
}

// Proxy forwards owner API requests through a single logged-in account. The account supplies the
// bearer token on every upstream call and refreshes it as needed, so local clients never handle
// OAuth credentials.
type Proxy struct {
	Timeout time.Duration

	acct Account
}

// New creates an http proxy that sends requests through acct.
//
// Clients of the proxy do not authenticate. Do not expose the listener beyond localhost without
// putting an authenticating layer in front of it.
func New(acct Account) *Proxy {
	return &Proxy{
		Timeout: DefaultTimeout,
		acct:    acct,
	}
}

// Response contains a server's response to a client request.
type Response struct {
	Response   interface{} `json:"response"`
	Error      string      `json:"error"`
	ErrDetails string      `json:"error_description"`
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := Response{}

	var httpErr *protocol.HttpError
	var jsonBytes []byte
	if errors.As(err, &httpErr) {
		// The upstream API replied with its own error document. Relay it with its original
		// status code.
		code = httpErr.Code
		jsonBytes = []byte(err.Error())
	} else {
		if err == nil {
			reply.Error = http.StatusText(code)
		} else {
			reply.Error = err.Error()
		}
		jsonBytes, err = json.Marshal(&reply)
		if err != nil {
			log.Error("Error serializing reply %+v: %s", &reply, err)
			code = http.StatusInternalServerError
			jsonBytes = []byte("{\"error\": \"internal server error\"}")
		}
	}
	if code != http.StatusOK {
		log.Error("Returning error %s", http.StatusText(code))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

func writeJSONResponse(w http.ResponseWriter, reply map[string]interface{}) {
	jsonBytes, err := json.Marshal(reply)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, protocol.ErrVehicleUnavailable):
		// Restore the status the API uses for vehicles that are offline or asleep.
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

// clientAddress reports the originating client for the access log, honoring the X-Forwarded-For
// chain when an upstream proxy supplies one.
func clientAddress(req *http.Request) string {
	if forwarded := req.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
		return strings.Join(forwarded, ", ")
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Info("Received %s request for %s from %s", req.Method, req.URL.Path, clientAddress(req))

	endpoint, ok := strings.CutPrefix(req.URL.Path, apiPathPrefix)
	if !ok || endpoint == "" {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("unknown path: %s", req.URL.Path))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	var reply map[string]interface{}
	var err error
	switch req.Method {
	case http.MethodGet:
		if req.URL.RawQuery != "" {
			endpoint += "?" + req.URL.RawQuery
		}
		reply, err = p.acct.Get(ctx, endpoint)
	case http.MethodPost:
		var data url.Values
		data, err = readRequestData(w, req)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		reply, err = p.acct.Post(ctx, endpoint, data)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
		return
	}

	if err != nil {
		writeJSONError(w, statusFromError(err), err)
		return
	}
	writeJSONResponse(w, reply)
}

// readRequestData converts a client request body into the form the upstream API accepts.
// Form-encoded bodies pass through; JSON objects of scalars are flattened into form fields, which
// lets callers built for the JSON command API talk to the proxy unmodified.
func readRequestData(w http.ResponseWriter, req *http.Request) (url.Values, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("could not read request body: %s", err)
	}
	if len(body) == 0 {
		return url.Values{}, nil
	}
	contentType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if contentType == "application/json" {
		return flattenJSONBody(body)
	}
	data, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("could not parse request body: %s", err)
	}
	return data, nil
}

func flattenJSONBody(body []byte) (url.Values, error) {
	var params map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&params); err != nil {
		return nil, fmt.Errorf("could not parse JSON body: %s", err)
	}
	data := url.Values{}
	for name, value := range params {
		switch v := value.(type) {
		case string:
			data.Set(name, v)
		case json.Number:
			data.Set(name, v.String())
		case bool:
			data.Set(name, strconv.FormatBool(v))
		case nil:
			data.Set(name, "")
		default:
			return nil, fmt.Errorf("unsupported value for parameter %s", name)
		}
	}
	return data, nil
}
