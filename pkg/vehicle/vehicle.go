// Package vehicle exposes the vehicles on an account along with their telemetry and command
// endpoints.
package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/LukeDurrant/teslajson/pkg/protocol"
)

// Sender issues authenticated API requests on behalf of a vehicle. It is implemented by
// account.Account; the declaration lives here so this package does not import its own consumer.
type Sender interface {
	// Get fetches an endpoint and returns the decoded JSON reply.
	Get(ctx context.Context, endpoint string) (map[string]interface{}, error)

	// Post sends data to an endpoint as a form-encoded body and returns the decoded JSON reply.
	// A nil data sends a GET instead; use an empty url.Values for a bodiless POST.
	Post(ctx context.Context, endpoint string, data url.Values) (map[string]interface{}, error)
}

// A Vehicle represents one entry of an account's vehicle list. Record preserves every field the
// list endpoint returned; typed getters cover the commonly used ones. A Vehicle is a snapshot of
// the vehicle's metadata as of login time. Issuing data requests or commands does not mutate it.
type Vehicle struct {
	Record map[string]interface{}

	id     int64
	sender Sender
}

// New wraps one vehicle-list record. The record must carry a numeric id field, which becomes the
// vehicle's identity in request paths.
func New(record map[string]interface{}, sender Sender) (*Vehicle, error) {
	raw, ok := record["id"]
	if !ok {
		return nil, fmt.Errorf("%w: vehicle record has no id", protocol.ErrBadResponse)
	}
	var id int64
	switch number := raw.(type) {
	case json.Number:
		var err error
		if id, err = number.Int64(); err != nil {
			return nil, fmt.Errorf("%w: vehicle id %q: %s", protocol.ErrBadResponse, number, err)
		}
	case float64:
		// Records decoded without json.Number support lose precision above 2^53, but remain usable.
		id = int64(number)
	default:
		return nil, fmt.Errorf("%w: vehicle id is %T, not a number", protocol.ErrBadResponse, raw)
	}
	return &Vehicle{Record: record, id: id, sender: sender}, nil
}

// ID returns the vehicle's numeric API identifier. This is distinct from the VIN.
func (v *Vehicle) ID() int64 {
	return v.id
}

// VIN returns the vehicle identification number from the list record.
func (v *Vehicle) VIN() string {
	return v.stringField("vin")
}

// DisplayName returns the owner-assigned vehicle name from the list record.
func (v *Vehicle) DisplayName() string {
	return v.stringField("display_name")
}

// State returns the vehicle's online state as of login: "online", "asleep", or "offline".
func (v *Vehicle) State() string {
	return v.stringField("state")
}

func (v *Vehicle) stringField(key string) string {
	value, _ := v.Record[key].(string)
	return value
}

// Field returns the raw record value for key.
func (v *Vehicle) Field(key string) (interface{}, bool) {
	value, ok := v.Record[key]
	return value, ok
}

// Get fetches the vehicle-scoped endpoint vehicles/{id}/{endpoint}.
func (v *Vehicle) Get(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	return v.sender.Get(ctx, v.scoped(endpoint))
}

// Post sends a form to the vehicle-scoped endpoint vehicles/{id}/{endpoint}.
func (v *Vehicle) Post(ctx context.Context, endpoint string, data url.Values) (map[string]interface{}, error) {
	return v.sender.Post(ctx, v.scoped(endpoint), data)
}

func (v *Vehicle) scoped(endpoint string) string {
	return fmt.Sprintf("vehicles/%d/%s", v.id, endpoint)
}

// WakeUp asks the API to bring the vehicle online and returns the reply envelope as-is. Waking
// takes a while; poll with data requests or re-fetch the vehicle list until the state reads
// online.
func (v *Vehicle) WakeUp(ctx context.Context) (map[string]interface{}, error) {
	return v.Post(ctx, "wake_up", url.Values{})
}

// Data fetches the vehicle's consolidated data endpoint and returns the reply's response field.
func (v *Vehicle) Data(ctx context.Context) (map[string]interface{}, error) {
	return v.dataEndpoint(ctx, "data")
}

// DataRequest fetches one named state category, such as charge_state or climate_state, and
// returns the reply's response field.
func (v *Vehicle) DataRequest(ctx context.Context, name string) (map[string]interface{}, error) {
	return v.dataEndpoint(ctx, "data_request/"+name)
}

func (v *Vehicle) dataEndpoint(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	reply, err := v.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	response, ok := reply["response"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing response field", protocol.ErrBadResponse)
	}
	return response, nil
}

// Command executes the named command, such as honk_horn or charge_start, with optional form
// parameters. The reply envelope is returned unmodified: callers inspect response.result and
// response.reason to learn whether the vehicle accepted the command. This layer does not
// interpret API-level failures. A nil data still sends a POST, which the command endpoints
// require.
func (v *Vehicle) Command(ctx context.Context, name string, data url.Values) (map[string]interface{}, error) {
	if data == nil {
		data = url.Values{}
	}
	return v.Post(ctx, "command/"+name, data)
}
