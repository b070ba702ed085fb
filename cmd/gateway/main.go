// The gateway server hosts the oneEdge device identity API: provisioning,
// challenge-response authentication, secret rotation, and quarantine
// lifecycle, backed by a PostgreSQL device registry.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/oneedge/gateway/api/devicehandler"
	"github.com/oneedge/gateway/cmd/flags"
	"github.com/oneedge/gateway/config"
	"github.com/oneedge/gateway/engine"
	"github.com/oneedge/gateway/httpserver"
	"github.com/oneedge/gateway/interfaces"
	"github.com/oneedge/gateway/registry"
)

var appFlags = append([]cli.Flag{
	flags.ConfigFlag,
	flags.ListenAddrFlag,
	flags.DatabaseDSNFlag,
	flags.MemoryRegistryFlag,
}, flags.CommonFlags...)

func main() {
	// A .env file can carry ONEEDGE_DATABASE_DSN and friends in development.
	_ = godotenv.Load()

	app := &cli.App{
		Name:   "gateway",
		Usage:  "Serve the oneEdge device identity and authentication API",
		Flags:  appFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		return err
	}

	dsn := cfg.Database.DSN
	if cCtx.IsSet(flags.DatabaseDSNFlag.Name) {
		dsn = cCtx.String(flags.DatabaseDSNFlag.Name)
	}

	var store interfaces.DeviceStore
	if cfg.Database.InMemory || cCtx.Bool(flags.MemoryRegistryFlag.Name) {
		logger.Warn("Using in-memory device registry, no state will survive a restart")
		store = registry.NewMemoryStore()
	} else {
		db, err := registry.Connect(dsn, cfg.Database.DataDir, logger)
		if err != nil {
			logger.Error("Failed to connect to device registry database", "err", err)
			return err
		}
		defer db.Close()

		store, err = registry.NewGormStore(db.DB, logger)
		if err != nil {
			logger.Error("Failed to initialize device registry", "err", err)
			return err
		}
	}

	eng := engine.New(engine.Config{
		MaxFailedAuthAttempts: uint(cfg.Gateway.MaxFailedAuthAttempts),
		ChallengeWindow:       cfg.Gateway.ChallengeWindow(),
		BaseTopic:             cfg.Gateway.BaseTopic,
	}, logger)

	handler := devicehandler.NewHandler(store, eng, logger)

	serverCfg := flags.ConfigureServer(cCtx, cfg, logger)
	server, err := httpserver.New(serverCfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting gateway",
		"listenAddr", serverCfg.ListenAddr,
		"maxFailedAuthAttempts", cfg.Gateway.MaxFailedAuthAttempts,
		"challengeWindow", cfg.Gateway.ChallengeWindow().String(),
	)
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
