package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/hc06ctl/hc06"
	"i4.energy/across/hc06ctl/settings"
)

var version = "dev"

// app is the state shared by every subcommand, built before each runs.
type app struct {
	config     *Config
	logger     *slog.Logger
	logCloser  io.Closer
	provider   *hc06.SerialProvider
	controller *hc06.Controller
	out        io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd(os.Stdout)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	a := &app{out: out}
	var configFile string

	root := &cobra.Command{
		Use:           "hc06ctl",
		Short:         "Configure HC-06 Bluetooth modules over a serial adapter",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, configFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (YAML, JSON or TOML)")
	flags.StringP("port", "p", "", "serial port of the adapter (default: first USB serial port)")
	flags.String("settings", "", "device settings file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to this file, rotated")
	flags.Duration("command-timeout", hc06.DefaultCommandTimeout, "maximum wait for a device reply")
	flags.Duration("settle-delay", hc06.DefaultSettleDelay, "pause the device needs between some commands")

	root.AddCommand(
		newPortsCmd(a),
		newPingCmd(a),
		newVersionCmd(a),
		newShowCmd(a),
		newSetCmd(a),
		newServeCmd(a),
	)
	return root, a
}

func (a *app) init(cmd *cobra.Command, configFile string) error {
	config, err := LoadConfig(
		WithDefaults(),
		WithFile(configFile),
		WithEnv(),
		WithFlags(cmd.Flags()),
	)
	if err != nil {
		return err
	}
	a.config = config
	a.logger, a.logCloser = newLogger(config)

	core, err := config.CoreConfig().WithLogger(a.logger).Build()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.provider = &hc06.SerialProvider{
		PortName: config.SerialPort,
		Logger:   a.logger.With("component", "ports"),
	}
	session := hc06.NewSession(core, nil)
	a.controller = hc06.NewController(session, settings.NewFileStore(config.SettingsPath), a.provider, core)
	return a.controller.Start(cmd.Context())
}

// close sends scheduled writes, releases the port and the log file. It is
// safe to call when init never ran.
func (a *app) close() error {
	var err error
	if a.controller != nil {
		a.controller.FlushScheduled()
		err = a.controller.Close()
		a.controller = nil
	}
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
	return err
}

// connect opens the configured port and waits for the firmware version.
func (a *app) connect(ctx context.Context) error {
	if err := a.controller.Connect(ctx, nil); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ports",
		Short:   "List USB serial ports",
		Aliases: []string{"ls", "list"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			known, err := a.provider.Known(cmd.Context())
			if err != nil {
				return err
			}
			if len(known) == 0 {
				fmt.Fprintln(a.out, "No USB serial ports found.")
				return nil
			}
			for _, d := range known {
				fmt.Fprintf(a.out, "%s\t%s\n", d.Name(), d.Identity())
			}
			return nil
		},
	}
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the device answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			st := a.controller.Status()
			fmt.Fprintf(a.out, "%s: OK (%s)\n", st.Port, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the device firmware version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			v := a.controller.Status().Version
			if v == "" {
				return errors.New("device did not report a version")
			}
			fmt.Fprintln(a.out, v)
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the last confirmed device settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printJSON(a.controller.Settings())
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <baud|parity|role|name|pin> <value>",
		Short: "Write one setting to the device",
		Long: `Write one setting to the device and record it once the device confirms.

Baud and parity changes reopen the port with the new link parameters.`,
		Example: `  hc06ctl set baud 115200
  hc06ctl set parity even
  hc06ctl set name Robot
  hc06ctl set pin 4321`,
		Args: cobra.ExactArgs(2),
		ValidArgs: []string{
			string(hc06.PropertyBaud), string(hc06.PropertyParity), string(hc06.PropertyRole),
			string(hc06.PropertyName), string(hc06.PropertyPIN),
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			field := hc06.Property(args[0])
			if err := validateSetting(field, args[1]); err != nil {
				return err
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			if err := applySetting(cmd.Context(), a.controller, field, args[1]); err != nil {
				return err
			}
			return a.printJSON(a.controller.Settings())
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket bridge for a UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("bind-address", "127.0.0.1:8080", "bind address for the HTTP server")
	cmd.Flags().Duration("keepalive", 0, "ping the open device at this interval (0 disables)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	httpServer := &http.Server{
		Addr: a.config.BindAddress,
		Handler: &Server{
			Logger:     logger.With("component", "server"),
			Controller: a.controller,
			Provider:   a.provider,
		},
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}

// validateSetting checks a value before any port is opened.
func validateSetting(field hc06.Property, value string) error {
	switch field {
	case hc06.PropertyBaud:
		_, err := hc06.ParseBaud(value)
		return err
	case hc06.PropertyParity:
		_, err := hc06.ParseParity(value)
		return err
	case hc06.PropertyRole:
		_, err := hc06.ParseRole(value)
		return err
	case hc06.PropertyName:
		return hc06.ValidateName(value)
	case hc06.PropertyPIN:
		return hc06.ValidatePIN(value)
	default:
		return fmt.Errorf("%w: unknown setting %q", hc06.ErrInvalidArgument, field)
	}
}

// applySetting parses value for field and writes it through c.
func applySetting(ctx context.Context, c *hc06.Controller, field hc06.Property, value string) error {
	switch field {
	case hc06.PropertyBaud:
		b, err := hc06.ParseBaud(value)
		if err != nil {
			return err
		}
		return c.SetBaud(ctx, b)
	case hc06.PropertyParity:
		p, err := hc06.ParseParity(value)
		if err != nil {
			return err
		}
		return c.SetParity(ctx, p)
	case hc06.PropertyRole:
		r, err := hc06.ParseRole(value)
		if err != nil {
			return err
		}
		return c.SetRole(ctx, r)
	case hc06.PropertyName:
		return c.SetName(ctx, value)
	case hc06.PropertyPIN:
		return c.SetPIN(ctx, value)
	default:
		return fmt.Errorf("%w: unknown setting %q", hc06.ErrInvalidArgument, field)
	}
}
