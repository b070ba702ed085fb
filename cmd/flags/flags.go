package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/oneedge/gateway/common"
	"github.com/oneedge/gateway/config"
	"github.com/oneedge/gateway/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer merges the config file's server section with any flags
// set on the command line. Flags win.
func ConfigureServer(cCtx *cli.Context, cfg *config.Config, logger *slog.Logger) *httpserver.HTTPServerConfig {
	listenAddr := cfg.Server.ListenAddr
	if cCtx.IsSet(ListenAddrFlag.Name) {
		listenAddr = cCtx.String(ListenAddrFlag.Name)
	}
	metricsAddr := cfg.Server.MetricsAddr
	if cCtx.IsSet(MetricsAddrFlag.Name) {
		metricsAddr = cCtx.String(MetricsAddrFlag.Name)
	}
	enablePprof := cfg.Server.EnablePprof || cCtx.Bool(PprofFlag.Name)
	drainSeconds := cfg.Server.DrainSeconds
	if cCtx.IsSet(DrainSecondsFlag.Name) {
		drainSeconds = cCtx.Int64(DrainSecondsFlag.Name)
	}

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		OperatorUsername:         cfg.Operator.Username,
		OperatorPasswordHash:     cfg.Operator.PasswordHash,
		DrainDuration:            time.Duration(drainSeconds) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ConfigFlag = &cli.StringFlag{
	Name:  "config",
	Value: "",
	Usage: "path to the gateway YAML config file",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the device API",
}

var DatabaseDSNFlag = &cli.StringFlag{
	Name:    "database-dsn",
	Value:   "",
	Usage:   "PostgreSQL DSN for the device registry; empty starts embedded PostgreSQL",
	EnvVars: []string{"ONEEDGE_DATABASE_DSN"},
}

var MemoryRegistryFlag = &cli.BoolFlag{
	Name:  "memory-registry",
	Value: false,
	Usage: "keep the device registry in process memory (no persistence)",
}

var GatewayAddrFlag = &cli.StringFlag{
	Name:  "gateway-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "base URL of the gateway API",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
