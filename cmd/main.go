package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kumoctl/internal/config"
	"kumoctl/internal/kumo"
	"kumoctl/internal/logger"
	"kumoctl/internal/push"
	"kumoctl/internal/snapshot"
	"kumoctl/internal/tokens"
	"kumoctl/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	root := newRootCmd(a)
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints a failure with actionable guidance where there is
// any: auth failures point at re-login, API failures carry the
// server's status and body verbatim.
func reportError(err error) {
	var authErr *kumo.AuthError
	if errors.As(err, &authErr) {
		fmt.Fprintf(os.Stderr, "Authentication error: %v\n", authErr)
		fmt.Fprintln(os.Stderr, "Try running: kumoctl login")
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// app holds the wired session and the resources to release on exit.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	session  *kumo.Session
	resolver *push.Resolver
	cache    *snapshot.Store

	// flag overrides
	configFile string
	username   string
	password   string
	tokenFile  string
}

// init loads configuration, applies flag overrides and wires the
// session, token store, snapshot cache and push resolver. The cache
// and the push channel are optional; failure to set either up only
// degrades freshness.
func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.username != "" {
		cfg.Username = a.username
	}
	if a.password != "" {
		cfg.Password = a.password
	}
	if a.tokenFile != "" {
		cfg.TokenFile = a.tokenFile
	}
	a.cfg = cfg
	a.log = logger.Get(cfg.LogLevel)

	var snaps kumo.Snapshots
	if cfg.CacheFile != "" {
		cache, err := snapshot.Open(cfg.CacheFile)
		if err != nil {
			a.log.Debugw("snapshot cache unavailable", "path", cfg.CacheFile, "err", err)
		} else {
			a.cache = cache
			snaps = cache
		}
	}

	a.session = kumo.NewSession(kumo.Options{
		Transport:   transport.New(cfg.BaseURL, cfg.HTTPTimeout),
		Tokens:      tokens.NewStore(cfg.TokenFile),
		Snapshots:   snaps,
		Log:         a.log,
		Username:    cfg.Username,
		Password:    cfg.Password,
		SiteID:      cfg.SiteID,
		Serials:     cfg.Serials,
		PushTimeout: cfg.PushTimeout,
	})

	var socket push.Transport
	if cfg.SocketURL != "" {
		socket = push.NewSocket(cfg.SocketURL, a.log)
	}
	a.resolver = push.NewResolver(socket, a.session.AccessTokenFunc(), a.log)
	a.session.SetResolver(a.resolver)
	return nil
}

// close releases the push connection and the snapshot cache.
func (a *app) close() {
	if a.resolver != nil {
		a.resolver.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil && a.log != nil {
			a.log.Debugw("closing snapshot cache", "err", err)
		}
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "kumoctl",
		Short:         "Control Mitsubishi Kumo Cloud devices",
		Long:          "kumoctl talks to the Kumo Cloud API: device status (live when possible), setpoints, modes, fan and vane control.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "path to YAML config file")
	flags.StringVarP(&a.username, "username", "u", "", "Kumo Cloud username (or KUMO_USERNAME)")
	flags.StringVarP(&a.password, "password", "p", "", "Kumo Cloud password (or KUMO_PASSWORD)")
	flags.StringVar(&a.tokenFile, "token-file", "", "path to token cache file")

	root.AddCommand(
		newLoginCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newSetTempCmd(a),
		newSetModeCmd(a),
		newTurnCmd(a, true),
		newTurnCmd(a, false),
		newSetFanCmd(a),
		newSetVaneCmd(a),
		newRawCmd(a),
	)
	return root
}
