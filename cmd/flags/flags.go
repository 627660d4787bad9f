package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/artlu99/wallets-and-faucet/common"
	"github.com/artlu99/wallets-and-faucet/entropy"
	"github.com/artlu99/wallets-and-faucet/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
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

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var StoreURIFlag = &cli.StringFlag{
	Name:    "store-uri",
	Value:   "memory://",
	EnvVars: []string{"STORE_URI"},
	Usage:   "secret store location (memory://, file://path, vault://host/mount, s3://bucket/prefix)",
}

var TTLSecondsFlag = &cli.Int64Flag{
	Name:    "ttl-seconds",
	Value:   3600,
	EnvVars: []string{"TTL_SECONDS"},
	Usage:   "record lifetime in seconds, must exceed 60",
}

var EncryptionKeyFlag = &cli.StringFlag{
	Name:    "encryption-key",
	EnvVars: []string{"ENCRYPTION_KEY_256_BIT"},
	Usage:   "default 256-bit encryption key as a 40-character Base85 string",
}

var EncryptionPassphraseFlag = &cli.StringFlag{
	Name:    "encryption-passphrase",
	EnvVars: []string{"ENCRYPTION_PASSPHRASE"},
	Usage:   "passphrase to derive the default encryption key from, used when encryption-key is not set",
}

var SaltFlag = &cli.StringFlag{
	Name:    "salt",
	EnvVars: []string{"SALT"},
	Usage:   "default addressing salt, a Base85 string of at most 255 characters",
}

var BeaconURLFlag = &cli.StringFlag{
	Name:    "beacon-url",
	Value:   entropy.DefaultBeaconURL,
	EnvVars: []string{"BEACON_URL"},
	Usage:   "public randomness beacon endpoint for entropy mixing",
}

var ChargePerRequestFlag = &cli.Float64Flag{
	Name:    "charge-per-request",
	Value:   0.10,
	EnvVars: []string{"CHARGE_PER_REQUEST"},
	Usage:   "price of one gated fetch in USD",
}

var PayToAddressFlag = &cli.StringFlag{
	Name:    "payto-address",
	EnvVars: []string{"PAYTO_ADDRESS"},
	Usage:   "settlement address receiving x402 payments",
}

var FacilitatorURLFlag = &cli.StringFlag{
	Name:    "facilitator-url",
	Value:   "https://x402.org/facilitator",
	EnvVars: []string{"FACILITATOR_URL"},
	Usage:   "x402 facilitator endpoint for payment verification and settlement",
}

var PaymentWorkerURLFlag = &cli.StringFlag{
	Name:    "payment-worker-url",
	EnvVars: []string{"PAYMENT_WORKER_URL"},
	Usage:   "payment worker endpoint the gate forwards gated requests to",
}

var PaymentBypassFlag = &cli.BoolFlag{
	Name:    "payment-bypass",
	Value:   false,
	EnvVars: []string{"PAYMENT_BYPASS"},
	Usage:   "admit gated requests without payment verification (development only)",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
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
	ListenAddrFlag,
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
