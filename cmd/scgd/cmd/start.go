package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stakecardgame/apps/chain/internal/app"
	"stakecardgame/apps/chain/internal/config"
	"stakecardgame/apps/chain/internal/publish"
)

func newStartCmd(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(cmd, v, map[string]string{
				"addr":       config.KeyABCIAddr,
				"transport":  config.KeyABCITransport,
				"log-level":  config.KeyLogLevel,
				"nats-url":   config.KeyNATSURL,
				"allow-mint": config.KeyGameAllowMint,
			}); err != nil {
				return err
			}
			cfg, err := config.Load(v, homeDir(cmd))
			if err != nil {
				return err
			}
			return runStart(cmd, cfg)
		},
	}
	c.Flags().String("addr", config.Default().ABCI.Addr, "ABCI listen address")
	c.Flags().String("transport", config.Default().ABCI.Transport, "ABCI transport (socket|grpc)")
	c.Flags().String("log-level", config.Default().Log.Level, "log level (trace|debug|info|warn|error)")
	c.Flags().String("nats-url", "", "NATS server URL for game update publishing (empty disables)")
	c.Flags().Bool("allow-mint", false, "accept unsigned bank/mint txs (devnets only)")
	return c
}

func runStart(cmd *cobra.Command, cfg config.Config) error {
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	params, err := cfg.EngineParams()
	if err != nil {
		return err
	}

	var notifier *publish.Notifier
	if cfg.NATS.URL != "" {
		nc, err := publish.Connect(cfg.NATS.URL, cfg.NATS.Name, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		notifier = publish.NewNotifier(nc, cfg.NATS.SubjectPrefix, logger)
		logger.Info("publishing game updates", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	a, err := app.New(app.Options{
		Home:      cfg.Home,
		Params:    params,
		AllowMint: cfg.Game.AllowMint,
		Logger:    logger,
		Notifier:  notifier,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer func() { _ = a.Close() }()

	srv, err := server.NewServer(cfg.ABCI.Addr, cfg.ABCI.Transport, a)
	if err != nil {
		return fmt.Errorf("start abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("abci server start: %w", err)
	}
	defer func() { _ = srv.Stop() }()
	logger.Info("abci server listening", "addr", cfg.ABCI.Addr, "transport", cfg.ABCI.Transport)

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	return nil
}
