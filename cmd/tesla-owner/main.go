package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/joho/godotenv"

	"github.com/LukeDurrant/teslajson/internal/log"
	"github.com/LukeDurrant/teslajson/pkg/account"
	"github.com/LukeDurrant/teslajson/pkg/cli"
	"github.com/LukeDurrant/teslajson/pkg/protocol"
	"github.com/LukeDurrant/teslajson/pkg/vehicle"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const EnvTeslaVIN = "TESLA_VIN"

const usage = `
 * All commands require owner API credentials (email and password, a token file, or a token in
   the system keyring).
 * Commands directed at a vehicle use -vin, or default to the first vehicle on the account.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(acct *account.Account, car *vehicle.Vehicle, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, acct, car, args); err != nil {
		if errors.Is(err, protocol.ErrVehicleUnavailable) {
			writeErr("Vehicle is offline or asleep. Run the wake command first.")
		} else if protocol.MayHaveSucceeded(err) {
			writeErr("Couldn't verify success: %s", err)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(acct *account.Account, car *vehicle.Vehicle, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if args[0] == "help" {
			if len(args) > 1 {
				if info, ok := commands[args[1]]; ok {
					info.Usage(args[1])
				} else {
					writeErr("Unrecognized command: %s", args[1])
				}
			} else {
				Usage()
			}
			continue
		}
		runCommand(acct, car, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

// pickVehicle resolves which of the account's vehicles commands should target.
func pickVehicle(acct *account.Account, vin string) (*vehicle.Vehicle, error) {
	if vin != "" {
		return acct.VehicleByVIN(vin)
	}
	if len(acct.Vehicles) == 0 {
		return nil, protocol.ErrNotFound
	}
	car := acct.Vehicles[0]
	log.Debug("Defaulting to vehicle %q (%s)", car.DisplayName(), car.VIN())
	return car, nil
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	_ = godotenv.Load()

	var (
		debug          bool
		vin            string
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		os.Exit(1)
	}
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.StringVar(&vin, "vin", "", "Send vehicle commands to the car with this `VIN`")
	flag.DurationVar(&commandTimeout, "command-timeout", 30*time.Second, "Set timeout for commands sent to the vehicle.")
	flag.DurationVar(&connTimeout, "connect-timeout", 20*time.Second, "Set timeout for logging in and fetching the vehicle list.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	if !debug {
		if debugEnv, ok := os.LookupEnv(cli.EnvVerbose); ok {
			debug = debugEnv != "false" && debugEnv != "0"
		}
	}
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	config.ReadFromEnvironment()
	if vin == "" {
		vin = os.Getenv(EnvTeslaVIN)
	}

	args := flag.Args()
	if len(args) > 0 && args[0] == "help" {
		if len(args) == 1 {
			Usage()
			status = 0
			return
		}
		info, ok := commands[args[1]]
		if !ok {
			writeErr("Unrecognized command: %s", args[1])
			return
		}
		info.Usage(args[1])
		status = 0
		return
	}
	if len(args) > 0 {
		if _, ok := commands[args[0]]; !ok {
			writeErr("Unrecognized command: %s", args[0])
			return
		}
	}

	if err := config.LoadCredentials(); err != nil {
		writeErr("Error loading credentials: %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	acct, err := config.Account(ctx)
	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	defer config.UpdateCachedToken(acct)

	car, err := pickVehicle(acct, vin)
	if err != nil {
		if vin != "" {
			writeErr("No vehicle with VIN %s on this account", vin)
			return
		}
		// Account-level commands still work without a vehicle.
		car = nil
	}

	if flag.NArg() > 0 {
		status = runCommand(acct, car, flag.Args(), commandTimeout)
	} else {
		status = runInteractiveShell(acct, car, commandTimeout)
	}
}
