package nats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/labstreaminglayer/App-PSMove/internal/version"
)

// ServerOptions configures the embedded NATS server.
type ServerOptions struct {
	Port         int
	Host         string
	Name         string
	ReadyTimeout time.Duration
	// Verbose forwards the server's debug output to Logger.
	Verbose bool
	Logger  *slog.Logger
}

// RandomPort asks the embedded server to pick a free port.
const RandomPort = server.RANDOM_PORT

// maxPayload bounds one message. A CBOR sample of the widest layout is well
// under 1 KiB; stream info for several controllers stays within a few KiB.
const maxPayload = 64 * 1024

// DefaultServerOptions returns defaults for the embedded server.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Port:         4222,
		Host:         "127.0.0.1",
		Name:         version.Name,
		ReadyTimeout: 5 * time.Second,
	}
}

// Server is the embedded broker that outlets publish to and control
// clients talk through.
type Server struct {
	ns     *server.Server
	opts   ServerOptions
	logger *slog.Logger
}

// NewServer creates a new embedded NATS server. Zero fields take the
// values of DefaultServerOptions.
func NewServer(opts ServerOptions) *Server {
	defaults := DefaultServerOptions()
	if opts.Port == 0 {
		opts.Port = defaults.Port
	}
	if opts.Host == "" {
		opts.Host = defaults.Host
	}
	if opts.Name == "" {
		opts.Name = defaults.Name
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaults.ReadyTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		opts:   opts,
		logger: logger.With("component", "nats-server"),
	}
}

// Start starts the embedded NATS server and waits for it to accept
// connections.
func (s *Server) Start() error {
	nsOpts := &server.Options{
		Host:           s.opts.Host,
		Port:           s.opts.Port,
		ServerName:     s.opts.Name,
		NoSigs:         true,
		MaxControlLine: 4096,
		MaxPayload:     maxPayload,
		Debug:          s.opts.Verbose,
	}

	ns, err := server.NewServer(nsOpts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}
	ns.SetLoggerV2(&serverLogger{logger: s.logger}, s.opts.Verbose, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(s.opts.ReadyTimeout) {
		ns.Shutdown()
		return fmt.Errorf("NATS server failed to start within %s", s.opts.ReadyTimeout)
	}

	s.ns = ns
	s.logger.Info("NATS server started", "url", s.ClientURL())
	return nil
}

// Stop shuts the server down and waits for client connections to drain.
// It is safe to call on a server that never started.
func (s *Server) Stop() {
	if s.ns == nil {
		return
	}
	s.logger.Info("Stopping NATS server", "clients", s.ns.NumClients())
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	s.ns = nil
}

// ClientURL returns the URL clients should use to connect.
func (s *Server) ClientURL() string {
	if s.ns == nil {
		return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
	}
	return s.ns.ClientURL()
}

// IsRunning returns true if the server is running and accepting connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}

// serverLogger routes nats-server output into slog.
type serverLogger struct {
	logger *slog.Logger
}

func (l *serverLogger) Noticef(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), "fatal", true)
}

func (l *serverLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Tracef(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "trace", true)
}
