package flags

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/tee-kms-core/common"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/httpserver"
	"github.com/ruteri/tee-kms-core/platform"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

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

// RootSecret reads the platform root from --root-secret, or stretches
// --root-passphrase with --root-salt. The caller should wipe the result.
func RootSecret(cCtx *cli.Context) ([]byte, error) {
	if h := cCtx.String(RootSecretFlag.Name); h != "" {
		root, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", RootSecretFlag.Name, err)
		}
		return root, nil
	}
	if p := cCtx.String(RootPassphraseFlag.Name); p != "" {
		salt := cCtx.String(RootSaltFlag.Name)
		if salt == "" {
			return nil, fmt.Errorf("--%s requires --%s", RootPassphraseFlag.Name, RootSaltFlag.Name)
		}
		return platform.RootFromPassphrase([]byte(p), []byte(salt)), nil
	}
	return nil, fmt.Errorf("one of --%s or --%s is required", RootSecretFlag.Name, RootPassphraseFlag.Name)
}

// PlatformConfig builds the platform configuration from flags. Root is
// left for the caller to fill.
func PlatformConfig(cCtx *cli.Context) (platform.Config, error) {
	cfg := platform.Config{
		Kind:          platform.Kind(cCtx.String(PlatformFlag.Name)),
		QuoteProvider: cCtx.String(QuoteProviderFlag.Name),
		Identity: platform.Identity{
			ProductID: uint16(cCtx.Uint(ProductIDFlag.Name)),
			SVN:       uint16(cCtx.Uint(SVNFlag.Name)),
		},
	}

	if m := cCtx.String(MeasurementFlag.Name); m != "" {
		if err := decodeMeasurement(m, cfg.Identity.Measurement[:]); err != nil {
			return cfg, fmt.Errorf("invalid --%s: %w", MeasurementFlag.Name, err)
		}
	}
	if s := cCtx.String(SignerFlag.Name); s != "" {
		if err := decodeMeasurement(s, cfg.Identity.Signer[:]); err != nil {
			return cfg, fmt.Errorf("invalid --%s: %w", SignerFlag.Name, err)
		}
	}
	if t := cCtx.String(RemoteTypeFlag.Name); t != "" {
		typ, err := cryptoutils.AttestationTypeFromString(t)
		if err != nil {
			return cfg, fmt.Errorf("invalid --%s: %w", RemoteTypeFlag.Name, err)
		}
		cfg.RemoteType = typ
	}
	return cfg, nil
}

func decodeMeasurement(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// SPPublicKey loads the verifying party's PEM public key. It returns nil
// when --sp-pubkey is not set.
func SPPublicKey(cCtx *cli.Context) (cryptoutils.Pubkey, error) {
	path := cCtx.String(SPPubkeyFlag.Name)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cryptoutils.NewPubkey(raw)
}

var SPPubkeyFlag = &cli.StringFlag{
	Name:    "sp-pubkey",
	EnvVars: []string{"EHSM_SP_PUBKEY"},
	Usage:   "PEM file with the verifying party's P-256 public key",
}

var RootSecretFlag = &cli.StringFlag{
	Name:    "root-secret",
	EnvVars: []string{"EHSM_ROOT_SECRET"},
	Usage:   "hex-encoded software platform root secret (at least 32 bytes)",
}
var RootPassphraseFlag = &cli.StringFlag{
	Name:    "root-passphrase",
	EnvVars: []string{"EHSM_ROOT_PASSPHRASE"},
	Usage:   "derive the root secret from a passphrase with argon2id",
}
var RootSaltFlag = &cli.StringFlag{
	Name:    "root-salt",
	EnvVars: []string{"EHSM_ROOT_SALT"},
	Usage:   "salt for --root-passphrase",
}

var PlatformFlag = &cli.StringFlag{
	Name:    "platform",
	Value:   string(platform.KindSoftware),
	EnvVars: []string{"EHSM_PLATFORM"},
	Usage:   "platform providing quotes: 'software', 'tdx' or 'remote'",
}
var QuoteProviderFlag = &cli.StringFlag{
	Name:    "quote-provider",
	EnvVars: []string{"EHSM_QUOTE_PROVIDER"},
	Usage:   "base URL of the quote service, required for --platform=remote",
}
var RemoteTypeFlag = &cli.StringFlag{
	Name:  "remote-attestation-type",
	Usage: "attestation type served by the quote service ('qemu-tdx' or 'native')",
}
var MeasurementFlag = &cli.StringFlag{
	Name:  "measurement",
	Usage: "hex-encoded 32-byte measurement reported by the software platform",
}
var SignerFlag = &cli.StringFlag{
	Name:  "signer",
	Usage: "hex-encoded 32-byte signer identity reported by the software platform",
}
var ProductIDFlag = &cli.UintFlag{
	Name:  "product-id",
	Usage: "product id reported by the software platform",
}
var SVNFlag = &cli.UintFlag{
	Name:  "svn",
	Usage: "security version reported by the software platform",
}

var PlatformFlags = []cli.Flag{
	RootSecretFlag,
	RootPassphraseFlag,
	RootSaltFlag,
	PlatformFlag,
	QuoteProviderFlag,
	RemoteTypeFlag,
	MeasurementFlag,
	SignerFlag,
	ProductIDFlag,
	SVNFlag,
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

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
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
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
