package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/LukeDurrant/teslajson/pkg/account"
	"github.com/LukeDurrant/teslajson/pkg/vehicle"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrRequiresVehicle = errors.New("command requires a vehicle")
)

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error

type Command struct {
	help            string
	requiresVehicle bool // True if the command is sent to a vehicle rather than the account
	args            []Argument
	optional        []Argument
	handler         Handler
}

// parseParams interprets a DATA argument as form-encoded request parameters, e.g. "percent=80"
// or "lat=37.49&lon=-121.9".
func parseParams(data string) (url.Values, error) {
	params, err := url.ParseQuery(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
	}
	return params, nil
}

func printJSON(reply map[string]interface{}) error {
	jsonBytes, err := json.MarshalIndent(reply, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}

func checkReadiness(commandName string, haveVehicle bool) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requiresVehicle && !haveVehicle {
		return nil, ErrRequiresVehicle
	}
	return info, nil
}

func execute(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(args[0], car != nil)
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args), len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, acct, car, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var commands = map[string]*Command{
	"vehicles": &Command{
		help:            "List the vehicles on the account",
		requiresVehicle: false,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			for i, car := range acct.Vehicles {
				fmt.Printf("%d. %s\t%s\t%s\n", i+1, car.VIN(), car.DisplayName(), car.State())
			}
			return nil
		},
	},
	"wake": &Command{
		help:            "Wake the vehicle from sleep",
		requiresVehicle: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			reply, err := car.WakeUp(ctx)
			if err != nil {
				return err
			}
			if response, ok := reply["response"].(map[string]interface{}); ok {
				if state, ok := response["state"].(string); ok {
					fmt.Printf("Vehicle is %s\n", state)
					return nil
				}
			}
			return printJSON(reply)
		},
	},
	"data": &Command{
		help:            "Fetch the vehicle's full state rollup",
		requiresVehicle: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			reply, err := car.Data(ctx)
			if err != nil {
				return err
			}
			return printJSON(reply)
		},
	},
	"state": &Command{
		help:            "Fetch one NAME data_request category (charge_state, climate_state, drive_state, gui_settings, vehicle_state)",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "NAME", help: "data_request category to fetch"},
		},
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			reply, err := car.DataRequest(ctx, args["NAME"])
			if err != nil {
				return err
			}
			return printJSON(reply)
		},
	},
	"command": &Command{
		help:            "Send command NAME to the vehicle",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "NAME", help: "Command name, e.g. honk_horn or set_charge_limit"},
		},
		optional: []Argument{
			Argument{name: "DATA", help: "Form-encoded parameters, e.g. percent=80"},
		},
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			params, err := parseParams(args["DATA"])
			if err != nil {
				return err
			}
			reply, err := car.Command(ctx, args["NAME"], params)
			if err != nil {
				return err
			}
			return printJSON(reply)
		},
	},
	"get": &Command{
		help:            "GET an owner API ENDPOINT. Hostname will be taken from -base-url.",
		requiresVehicle: false,
		args: []Argument{
			Argument{name: "ENDPOINT", help: "Owner API endpoint, relative to the API path"},
		},
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			reply, err := acct.Get(ctx, args["ENDPOINT"])
			if err != nil {
				return err
			}
			return printJSON(reply)
		},
	},
	"post": &Command{
		help:            "POST form-encoded DATA to an owner API ENDPOINT. Hostname will be taken from -base-url.",
		requiresVehicle: false,
		args: []Argument{
			Argument{name: "ENDPOINT", help: "Owner API endpoint, relative to the API path"},
		},
		optional: []Argument{
			Argument{name: "DATA", help: "Form-encoded parameters, e.g. percent=80"},
		},
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			params, err := parseParams(args["DATA"])
			if err != nil {
				return err
			}
			reply, err := acct.Post(ctx, args["ENDPOINT"], params)
			if err != nil {
				return err
			}
			return printJSON(reply)
		},
	},
	"token-export": &Command{
		help:            "Write the account's OAuth token JSON to stdout",
		requiresVehicle: false,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			t := acct.Token()
			if t == nil {
				return errors.New("account uses a static access token; there is no OAuth state to export")
			}
			return t.Export(os.Stdout)
		},
	},
}
