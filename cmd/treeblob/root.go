package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/treeblob/internal/adapter"
	"github.com/Ning0612/treeblob/internal/config"
	"github.com/Ning0612/treeblob/internal/logger"
	"github.com/Ning0612/treeblob/internal/service"
)

// app holds the state shared by all subcommands of one invocation
type app struct {
	root *cobra.Command

	configPath string
	storeRoot  string
	logLevel   string

	cfg *config.Config
	svc *service.BlobService

	// registry replaces service.DefaultRegistry when set
	registry *adapter.Registry
}

func newApp() *app {
	a := &app{}
	a.root = &cobra.Command{
		Use:   "treeblob",
		Short: "Store and move blobs on a hierarchical filesystem",
		Long: `treeblob exposes a directory tree (local, in-memory or Google Drive) as a
blob store addressed by ids such as blob:photos/2024/a.jpg.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	// use stdout as default output for cmd.Print()
	a.root.SetOut(os.Stdout)

	flags := a.root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: search ./config.yaml, ~/.config/treeblob)")
	flags.StringVar(&a.storeRoot, "root", "", "store root URI, overrides store.root")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	a.root.AddCommand(
		a.putCommand(),
		a.getCommand(),
		a.statCommand(),
		a.rmCommand(),
		a.mvCommand(),
		a.lsCommand(),
		a.journalCommand(),
		a.authCommand(),
	)
	return a
}

// execute runs the command line and releases everything setup acquired
func (a *app) execute(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	defer a.cleanup()
	return a.root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Resolve(a.configPath, a.storeRoot)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	lc, err := cfg.ToLoggerConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(lc); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// service validates the configuration and opens the store on first use
func (a *app) service() (*service.BlobService, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	svc, err := service.NewBlobService(a.cfg, a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", a.cfg.Store.Root, err)
	}
	logger.Get().Debug("store opened", "root", a.cfg.Store.Root, "scheme", a.cfg.Store.Scheme)
	a.svc = svc
	return svc, nil
}

func (a *app) cleanup() {
	if a.svc != nil {
		if err := a.svc.Close(); err != nil {
			logger.Get().Warn("Failed to close store", "error", err)
		}
		a.svc = nil
	}
	logger.Shutdown()
}
