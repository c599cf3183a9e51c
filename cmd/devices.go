package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/logging"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove/sim"
	"github.com/spf13/cobra"
)

// CreateListDevicesCmd creates the list-devices command.
func CreateListDevicesCmd() *cobra.Command {
	var driver string
	var address string
	var port int
	var timeout time.Duration
	var simControllers int

	cmd := &cobra.Command{
		Use:   "list-devices",
		Short: "List controllers known to the controller service",
		Long: `Connects to the controller service, enumerates controllers once and prints them as id:serial, ` +
			`the same form the bridge uses in device-list notifications.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("cli")

			var client psmove.Client
			switch driver {
			case "sim":
				client = sim.New(sim.Options{Controllers: simControllers})
			default:
				logger.Error("Unsupported controller service driver", "driver", driver)
				os.Exit(1)
			}

			if err := listDevices(cmd.Context(), client, address, port, timeout, cmd.OutOrStdout()); err != nil {
				logger.Error("Failed to list controllers", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "sim", "Controller service driver (sim)")
	cmd.Flags().StringVar(&address, "address", psmove.DefaultAddress, "Controller service address")
	cmd.Flags().IntVar(&port, "port", psmove.DefaultPort, "Controller service port")
	cmd.Flags().DurationVar(&timeout, "timeout", psmove.DefaultTimeout, "Request timeout")
	cmd.Flags().IntVar(&simControllers, "sim-controllers", 2, "Simulated controllers (sim driver only)")

	return cmd
}

func listDevices(ctx context.Context, client psmove.Client, address string, port int, timeout time.Duration, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.Connect(ctx, address, port, timeout); err != nil {
		return fmt.Errorf("connect to %s:%d: %w", address, port, err)
	}
	defer func() { _ = client.Disconnect() }()

	devices, err := client.ListDevices(ctx, timeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(out, "no controllers")
		return nil
	}
	for _, d := range devices {
		_, _ = fmt.Fprintln(out, d.String())
	}
	return nil
}
