// chalresp server: reference challenge server, user keys and attempt journal.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"dev.c0redev.chalresp/internal/config"
	"dev.c0redev.chalresp/internal/crypto"
	"dev.c0redev.chalresp/internal/instrument"
	"dev.c0redev.chalresp/internal/log"
	"dev.c0redev.chalresp/internal/server"
	"dev.c0redev.chalresp/internal/store"
	"dev.c0redev.chalresp/internal/transport"
)

func newRootCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Reference challenge/response server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "server configuration file")

	load := func() (*config.ServerConfig, error) {
		cfg, err := config.LoadServerFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load server config file: %w", err)
		}
		return cfg, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Accept sessions over TCP/TLS and optionally QUIC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "adduser <name> <key>",
		Short:   "Create a user, or replace its key (16 raw bytes or 32 hex chars)",
		Example: "  server adduser alice Jw0vMS6vG6kka0gl",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return addUser(cfg, args[0], args[1])
		},
	})

	var limit int
	attempts := &cobra.Command{
		Use:   "attempts <name>",
		Short: "List the latest verdicts for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return listAttempts(cmd, cfg, args[0], limit)
		},
	}
	attempts.Flags().IntVarP(&limit, "limit", "n", 20, "number of attempts")
	cmd.AddCommand(attempts)
	return cmd
}

func parseKey(s string) (crypto.Key, error) {
	if len(s) == crypto.KeySize*2 {
		return crypto.ParseKeyHex(s)
	}
	return crypto.ParseKey(s)
}

func addUser(cfg *config.ServerConfig, name, rawKey string) error {
	key, err := parseKey(rawKey)
	if err != nil {
		return err
	}
	if len(name) == 0 || len(name) > 15 {
		return fmt.Errorf("invalid argument: username must be 1..15 bytes")
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	u, err := db.UserByLogin(name)
	if err != nil {
		return err
	}
	if u != nil {
		return db.SetKey(name, key)
	}
	_, err = db.CreateUser(name, key)
	return err
}

func listAttempts(cmd *cobra.Command, cfg *config.ServerConfig, name string, limit int) error {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	list, err := db.Attempts(name, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCHALLENGE\tEXPECTED\tVERDICT")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%d %s %d\t%d\t%s\n", a.CreatedAt.Local().Format(time.DateTime), a.Left, a.Op, a.Right, a.Expected, a.Verdict)
	}
	return w.Flush()
}

func serve(ctx context.Context, cfg *config.ServerConfig) error {
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger := backend.GetLogger("main")

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := instrument.New()
	srv := server.New(db, server.Opts{Journal: db, Metrics: metrics, LogBackend: backend})

	tlsConfig, err := cfg.Listener.TLSConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ln net.Listener
	if ln, err = net.Listen("tcp", cfg.Listener.Address); err != nil {
		return err
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	// Each accept loop sends exactly once on acceptCh when it returns.
	acceptCh := make(chan error, 2)
	loops := 1
	go func() { acceptCh <- srv.Serve(ln) }()
	logger.Noticef("listening on %s (tls=%v)", ln.Addr(), tlsConfig != nil)

	var qln *transport.QUICListener
	if cfg.Listener.QUICAddress != "" {
		if qln, err = transport.ListenQUIC(cfg.Listener.QUICAddress, tlsConfig); err != nil {
			ln.Close()
			return err
		}
		loops++
		go func() { acceptCh <- srv.ServeQUIC(ctx, qln) }()
		logger.Noticef("quic listening on %s", qln.Addr())
	}

	httpErr := make(chan error, 1)
	var httpSrv *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		httpSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
		logger.Noticef("metrics on %s", cfg.Metrics.Address)
	}

	select {
	case <-ctx.Done():
		logger.Notice("shutting down")
	case err = <-acceptCh:
		loops--
	case err = <-httpErr:
	}
	if err != nil {
		logger.Errorf("%v", err)
	}
	stop()
	ln.Close()
	if qln != nil {
		qln.Close()
	}
	// No session may be added once Wait starts.
	for ; loops > 0; loops-- {
		<-acceptCh
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
			logger.Warningf("metrics shutdown: %v", serr)
		}
	}
	srv.Wait()
	return err
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
