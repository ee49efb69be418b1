// Command mediaserver runs the UPnP AV MediaServer: it loads config,
// opens the catalog, and starts the content manager, session manager,
// update manager and transport adapter together, shutting all of them
// down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencds/mediaserver/internal/cds"
	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/content"
	"github.com/opencds/mediaserver/internal/log"
	"github.com/opencds/mediaserver/internal/mrreg"
	"github.com/opencds/mediaserver/internal/session"
	"github.com/opencds/mediaserver/internal/storage"
	"github.com/opencds/mediaserver/internal/transport"
	"github.com/opencds/mediaserver/internal/update"
)

const sessionCheckInterval = 30 * time.Second

var (
	flagIP       string
	flagPort     int
	flagConfig   string
	flagHome     string
	flagDaemon   bool
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "mediaserver",
		Short:         "UPnP AV MediaServer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().StringVar(&flagIP, "ip", "", "IP address to bind to (default: first active non-loopback interface)")
	root.Flags().IntVar(&flagPort, "port", 0, "HTTP port to listen on (0 uses the config file's value)")
	root.Flags().StringVar(&flagConfig, "config", "", "path to config.xml (default: <home>/config.xml)")
	root.Flags().StringVar(&flagHome, "home", ".", "server home directory, holding config.xml and the catalog database")
	root.Flags().BoolVar(&flagDaemon, "daemon", false, "detach and run in the background")
	root.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mediaserver:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagDaemon {
		if err := daemonize(); err != nil {
			return fmt.Errorf("daemonizing: %w", err)
		}
	}

	log.SetLevel(flagLogLevel)
	ctx := log.NewContext(context.Background())

	configPath := flagConfig
	if configPath == "" {
		configPath = filepath.Join(flagHome, "config.xml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Server.Home = flagHome
	if flagIP != "" {
		cfg.Server.IP = flagIP
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}

	store, err := storage.Open(ctx, filepath.Join(flagHome, "catalog.db"))
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()
	if err := store.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping catalog: %w", err)
	}

	// The update manager's Emitter needs a live *transport.Router to post
	// GENA NOTIFYs through, but the Router in turn needs the update
	// manager (via CDS) to already exist. rt is filled in once New
	// returns; a batch emitted before then is dropped.
	var rt *transport.Router
	emit := func(ctx context.Context, pairs []update.Pair) {
		if rt != nil {
			rt.NotifyCDSUpdates(ctx, pairs)
		}
	}
	updates := update.New(store.Objects(), emit)
	go updates.Run(ctx)

	sessions := session.New(sessionCheckInterval)
	go sessions.Run()
	defer sessions.Stop()

	contentMgr := content.New(cfg, store, updates, sessions)
	if err := contentMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting content manager: %w", err)
	}
	defer contentMgr.Stop()

	cdsSvc := cds.New(cfg, store, updates)
	mrregSvc := mrreg.New()

	rt = transport.New(cfg, cdsSvc, mrregSvc, updates, contentMgr)
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("starting transport adapter: %w", err)
	}
	defer rt.Stop()

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: rt.Routes(),
	}

	serveErrs := make(chan error, 1)
	go func() {
		log.Info(ctx, "mediaserver: listening", "port", cfg.Server.Port, "udn", cfg.Server.UDN)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info(ctx, "mediaserver: shutting down", "signal", sig.String())
	case err := <-serveErrs:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "mediaserver: http shutdown error", err)
	}
	return nil
}
