package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/logging"
	"github.com/labstreaminglayer/App-PSMove/internal/nats"
	"github.com/spf13/cobra"
)

// CreateCtlCmd creates the ctl command and its subcommands, which drive a
// running bridge over NATS.
func CreateCtlCmd() *cobra.Command {
	var natsURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running bridge over NATS",
	}
	cmd.PersistentFlags().StringVar(&natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", nats.DefaultRequestTimeout, "Request timeout")

	// connect runs fn with a connected client and exits non-zero on error.
	connect := func(fn func(*nats.ControlClient) error) {
		logging.Initialize(logging.Config{Level: "warn", Format: "text"})
		logger := logging.GetLogger("cli")

		client := nats.NewControlClient(natsURL, timeout, logger)
		if err := client.Connect(); err != nil {
			logger.Error("Failed to connect", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		if err := fn(client); err != nil {
			logger.Error("Request failed", "error", err)
			os.Exit(1)
		}
	}

	cmd.AddCommand(createCtlLinkCmd(connect))
	cmd.AddCommand(createCtlStopCmd(connect))
	cmd.AddCommand(createCtlToggleCmd(connect))
	cmd.AddCommand(createCtlStatusCmd(connect))
	cmd.AddCommand(createCtlEventsCmd(connect))
	return cmd
}

type connectFunc func(func(*nats.ControlClient) error)

func createCtlLinkCmd(connect connectFunc) *cobra.Command {
	var rate float64
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Start the bridge, or disconnect it when running",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			var sampleRate *float64
			if cmd.Flags().Changed("rate") {
				sampleRate = &rate
			}
			connect(func(c *nats.ControlClient) error {
				reply, err := c.Link(sampleRate)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply.Action)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&rate, "rate", 0, "Nominal outlet rate in Hz (0 = irregular); defaults to the bridge setting")
	return cmd
}

func createCtlStopCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the bridge and wait for it to release everything",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			connect(func(c *nats.ControlClient) error {
				reply, err := c.Stop()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply.Action)
				return nil
			})
		},
	}
}

func createCtlToggleCmd(connect connectFunc) *cobra.Command {
	var toggle nats.ToggleCommand
	cmd := &cobra.Command{
		Use:   "toggle [device...]",
		Short: "Start streaming, or stop when streaming",
		Long: `Devices are given as ids or as id:serial strings from list-devices. ` +
			`Without devices every known controller is streamed.`,
		Run: func(cmd *cobra.Command, args []string) {
			toggle.Devices = args
			connect(func(c *nats.ControlClient) error {
				if _, err := c.Toggle(toggle); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "queued")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&toggle.IMU, "imu", false, "Stream calibrated IMU data")
	cmd.Flags().BoolVar(&toggle.IMURaw, "imu-raw", false, "Stream raw IMU data")
	cmd.Flags().BoolVar(&toggle.Pose, "pose", false, "Stream pose data")
	cmd.Flags().BoolVar(&toggle.PoseRaw, "pose-raw", false, "Stream raw tracker data")
	return cmd
}

func createCtlStatusCmd(connect connectFunc) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the bridge status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			connect(func(c *nats.ControlClient) error {
				status, err := c.Status()
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(status)
				}
				printStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status document")
	return cmd
}

func createCtlEventsCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "events [kind]",
		Short: "Print bridge notifications until interrupted",
		Long:  `Kinds: connection, devices, streaming, phase, gap. Without a kind every notification is printed.`,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			out := cmd.OutOrStdout()
			connect(func(c *nats.ControlClient) error {
				unsubscribe, err := c.SubscribeEvents(kind, func(msg nats.EventMessage) {
					_, _ = fmt.Fprintf(out, "%s %s %s\n", msg.Timestamp, msg.Kind, msg.Payload)
				})
				if err != nil {
					return err
				}
				defer unsubscribe()

				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigCh)
				<-sigCh
				return nil
			})
		},
	}
}

func printStatus(out io.Writer, st bridge.Status) {
	_, _ = fmt.Fprintf(out, "running:   %t\n", st.Running)
	_, _ = fmt.Fprintf(out, "phase:     %s\n", st.Phase)
	_, _ = fmt.Fprintf(out, "connected: %t\n", st.Connected)
	_, _ = fmt.Fprintf(out, "streaming: %t\n", st.Streaming)
	_, _ = fmt.Fprintf(out, "devices:   %s\n", strings.Join(st.Devices, ", "))
	if st.Session == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "session:   rate=%g devices=%v acquired=%v\n",
		st.Session.Config.SampleRate, st.Session.Config.Devices, st.Session.Acquired)
	for _, id := range st.Session.Outlets {
		_, _ = fmt.Fprintf(out, "  outlet %s\n", id)
	}
}
