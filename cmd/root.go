// Package cmd implements the offliner command line: the daemon on the
// root command and thin client subcommands that talk to its control API.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"offliner/internal/api"
	"offliner/internal/config"
	"offliner/internal/download"
	apperr "offliner/internal/errors"
	"offliner/internal/fetch"
	"offliner/internal/index"
	"offliner/internal/logger"
	"offliner/internal/notify"
	"offliner/internal/requirements"
)

// Version information - set via ldflags during build
var (
	Version = "dev"
)

var (
	dataDirFlag      string
	maxDownloadsFlag int
	listenFlag       string
)

var rootCmd = &cobra.Command{
	Use:   "offliner",
	Short: "A persistent stream-download manager",
	Long: `Offliner keeps a durable queue of stream downloads and runs them
against a bounded worker pool, gated by host preconditions such as
network availability. Run without arguments to start the daemon; use the
subcommands to control a running instance.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default: per-user config dir)")
	rootCmd.Flags().IntVar(&maxDownloadsFlag, "max-downloads", 0, "override the simultaneous download cap")
	rootCmd.Flags().StringVar(&listenFlag, "listen", "", "override the control API address")
}

func resolveDataDir() (string, error) {
	if dataDirFlag != "" {
		return dataDirFlag, nil
	}
	if dir := os.Getenv("OFFLINER_DATA_DIR"); dir != "" {
		return dir, nil
	}
	return config.DefaultDataDir()
}

func runDaemon() error {
	dataDir, err := resolveDataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}
	settings := cfg.Get()

	if err := logger.Init(dataDir, settings.LogMaxSizeMB, settings.LogMaxBackups); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to persist settings")
	}

	if maxDownloadsFlag > 0 {
		settings.MaxSimultaneousDownloads = maxDownloadsFlag
	}
	if listenFlag != "" {
		settings.ListenAddr = listenFlag
	}

	// One daemon per data dir.
	lock, err := acquireLock(dataDir)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyRunning) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Use 'offliner add <uri>' to queue a download on the active instance.")
			os.Exit(1)
		}
		return err
	}
	defer lock.release()

	db, err := index.Open(dataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	cacheDir := settings.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(dataDir, "cache")
	}

	required := flagsFromConfig(settings.Requirements)
	manager, err := download.NewManager(download.Options{
		Index:                    index.New(db),
		DownloaderFactory:        fetch.NewFactory(cacheDir, settings.RateLimitBytesPerSec),
		MaxSimultaneousDownloads: settings.MaxSimultaneousDownloads,
		MinRetryCount:            settings.MinRetryCount,
		Requirements:             required,
		WatcherFactory: func(req requirements.Flags) download.Watcher {
			return requirements.NewWatcher(req, cacheDir)
		},
	})
	if err != nil {
		return err
	}

	if settings.Notifications {
		manager.AddListener(notify.New())
	}

	server := api.NewServer(manager)
	if err := server.Start(settings.ListenAddr); err != nil {
		manager.Release()
		return err
	}

	fmt.Printf("offliner listening on %s (data dir %s)\n", settings.ListenAddr, dataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Log.Info().Msg("shutting down")
	server.Close()
	manager.Release()
	return nil
}

func flagsFromConfig(rc config.RequirementsConfig) requirements.Flags {
	var f requirements.Flags
	if rc.Network {
		f |= requirements.Network
	}
	if rc.UnmeteredNetwork {
		f |= requirements.UnmeteredNetwork
	}
	if rc.Charging {
		f |= requirements.Charging
	}
	if rc.DeviceIdle {
		f |= requirements.DeviceIdle
	}
	if rc.StorageNotLow {
		f |= requirements.StorageNotLow
	}
	if f == 0 {
		f = requirements.Network
	}
	return f
}
