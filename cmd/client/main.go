// chalresp client: one encrypted challenge/response round against a server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dev.c0redev.chalresp/internal/client"
	"dev.c0redev.chalresp/internal/config"
	"dev.c0redev.chalresp/internal/crypto"
	"dev.c0redev.chalresp/internal/instrument"
	"dev.c0redev.chalresp/internal/log"
	"dev.c0redev.chalresp/internal/transport"
)

type flags struct {
	configFile string
	logLevel   string
	username   string
	transport  string
	insecure   bool
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "client [host]",
		Short: "Encrypted challenge/response client",
		Long: `Connects to a challenge server, answers one encrypted arithmetic challenge
with the pre-shared key and prints SUCCESS or FAILURE.

The key comes from the config file, $CHALRESP_KEY, or a prompt when stdin is a terminal.`,
		Example: `  client 127.0.0.1
  client -c client.toml
  CHALRESP_KEY=Jw0vMS6vG6kka0gl client --transport tls auth.example.net:11000`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), &f, args)
		},
	}
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "configuration file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "logging level (DEBUG, INFO, NOTICE, WARNING, ERROR, CRITICAL)")
	cmd.Flags().StringVarP(&f.username, "user", "u", "", "username (default $USER)")
	cmd.Flags().StringVarP(&f.transport, "transport", "t", "", "tcp, tls or quic")
	cmd.Flags().BoolVarP(&f.insecure, "insecure", "k", false, "skip TLS certificate verification")
	return cmd
}

func loadConfig(f *flags, args []string) (*config.Config, error) {
	cfg, err := config.LoadFile(f.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if len(args) == 1 {
		cfg.Server.Address = args[0]
	}
	if f.username != "" {
		cfg.Session.Username = f.username
	}
	if f.transport != "" {
		cfg.Server.Transport = f.transport
	}
	if f.insecure {
		cfg.Server.InsecureSkipVerify = true
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// promptKey reads a raw key from the terminal without echo.
func promptKey() (crypto.Key, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return crypto.Key{}, errors.New("no key configured (set [Session] Key or CHALRESP_KEY)")
	}
	fmt.Fprint(os.Stderr, "key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return crypto.Key{}, err
	}
	return crypto.ParseKey(string(b))
}

func outcome(state client.State, err error) string {
	var se *client.Error
	if errors.As(err, &se) {
		return string(se.Reason)
	}
	return state.String()
}

func run(ctx context.Context, stdout io.Writer, f *flags, args []string) error {
	cfg, err := loadConfig(f, args)
	if err != nil {
		return err
	}
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger := backend.GetLogger("client")

	key, ok, err := cfg.Session.ParsedKey()
	if err != nil {
		return err
	}
	if !ok {
		if key, err = promptKey(); err != nil {
			return err
		}
	}

	var metrics *instrument.Metrics
	if cfg.Metrics.Textfile != "" {
		metrics = instrument.New()
		defer func() {
			if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Warningf("metrics: %v", err)
			}
		}()
	}

	start := time.Now()
	conn, err := transport.Dial(ctx, cfg.Server.Transport, cfg.Server.Address, transport.ClientTLS(cfg.Server.InsecureSkipVerify))
	if err != nil {
		metrics.Session(string(client.ReasonTransport), time.Since(start))
		return err
	}
	defer conn.Close()
	logger.Noticef("connected to %s over %s", conn.RemoteAddr(), cfg.Server.Transport)

	state, err := client.Run(conn, &client.Config{
		Username:   cfg.Session.Username,
		Key:        key,
		LogBackend: backend,
	})
	metrics.Session(outcome(state, err), time.Since(start))
	if err != nil {
		return err
	}
	if state == client.StateSuccess {
		fmt.Fprintln(stdout, "SUCCESS")
	} else {
		fmt.Fprintln(stdout, "FAILURE")
	}
	return nil
}

func main() {
	cmd := newRootCommand()
	if err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithVersion(versioninfo.Short()),
	); err != nil {
		os.Exit(1)
	}
}
