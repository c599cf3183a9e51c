package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/logging"
	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/version"
	"github.com/spf13/cobra"
)

// CreateMonitorCmd creates the monitor command.
func CreateMonitorCmd() *cobra.Command {
	var natsURL string
	var count int
	var showInfo bool

	cmd := &cobra.Command{
		Use:   "monitor [source-id]",
		Short: "Print samples published by bridge outlets",
		Long: `Attaches an inlet to one outlet by source id, or to every outlet when no id is given, ` +
			`and prints each decoded sample until interrupted or --count samples were received.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("monitor")

			sourceID := ""
			if len(args) == 1 {
				sourceID = args[0]
			}

			conn, err := outlet.Dial(natsURL, version.ClientName("monitor"), logger)
			if err != nil {
				logger.Error("Failed to connect to NATS", "url", natsURL, "error", err)
				os.Exit(1)
			}
			defer conn.Close()

			if showInfo && sourceID != "" {
				info, infoErr := outlet.ResolveStream(conn, sourceID, 2*time.Second)
				if infoErr != nil {
					logger.Error("Failed to resolve stream", "source_id", sourceID, "error", infoErr)
					os.Exit(1)
				}
				printStreamInfo(cmd.OutOrStdout(), info)
			}

			samples := make(chan outlet.Received, 256)
			inlet, err := outlet.OpenInlet(conn, sourceID, func(r outlet.Received) {
				select {
				case samples <- r:
				default:
				}
			}, func(decodeErr error) {
				logger.Warn("Dropping undecodable sample", "error", decodeErr)
			})
			if err != nil {
				logger.Error("Failed to open inlet", "error", err)
				os.Exit(1)
			}
			defer func() { _ = inlet.Close() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			received := 0
			for {
				select {
				case <-sigCh:
					return
				case r := <-samples:
					printSample(cmd.OutOrStdout(), r)
					received++
					if count > 0 && received >= count {
						return
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many samples (0 = run until interrupted)")
	cmd.Flags().BoolVar(&showInfo, "info", false, "Print the stream description before samples")

	return cmd
}

func printStreamInfo(out io.Writer, info outlet.StreamInfo) {
	rate := "irregular"
	if !info.Irregular() {
		rate = fmt.Sprintf("%g Hz", info.NominalRate)
	}
	_, _ = fmt.Fprintf(out, "%s (%s) %s, %d channels, %s\n",
		info.Name, info.Type, info.SourceID, info.ChannelCount, rate)
	for i, ch := range info.Desc.Channels {
		_, _ = fmt.Fprintf(out, "  %2d %-24s %-14s %s\n", i, ch.Label, ch.Type, ch.Unit)
	}
}

func printSample(out io.Writer, r outlet.Received) {
	values := make([]string, len(r.Values))
	for i, v := range r.Values {
		values[i] = fmt.Sprintf("%.4f", v)
	}
	_, _ = fmt.Fprintf(out, "%.6f %s [%s]\n", r.Timestamp, r.Source, strings.Join(values, " "))
}
