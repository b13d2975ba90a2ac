package main

import (
	"crypto/ecdsa"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/tee-kms-core/attestation"
	"github.com/ruteri/tee-kms-core/cmd/flags"
	"github.com/ruteri/tee-kms-core/common"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/kms"
	"github.com/ruteri/tee-kms-core/metrics"
	"github.com/ruteri/tee-kms-core/platform"
	"github.com/urfave/cli/v2"
)

var ServiceLogFlag = flags.LogServiceFlagFn("ehsm")

var globalFlags = append(append([]cli.Flag{flags.SPPubkeyFlag, ServiceLogFlag}, flags.PlatformFlags...), flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:    "ehsm",
		Usage:   "Operate the enclave key-management core",
		Version: common.Version,
		Flags:   globalFlags,
		Commands: []*cli.Command{
			createKeyCommand,
			encryptCommand,
			decryptCommand,
			asymEncryptCommand,
			asymDecryptCommand,
			signCommand,
			verifyCommand,
			generateDataKeyCommand,
			exportDataKeyCommand,
			randomCommand,
			apiKeyCommand,
			reportCommand,
			attestCommand,
			serveCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// enclave bundles a running core with what is needed to tear it down.
type enclave struct {
	*kms.Enclave
	log      *slog.Logger
	platform platform.Attester
	exchange *attestation.Exchange
	registry *prometheus.Registry
}

func (e *enclave) Close() {
	if d, ok := e.platform.(interface{ Destroy() }); ok {
		d.Destroy()
	}
}

// openEnclave builds the platform from the root secret flags and starts
// the core on it. A nil spPub is read from --sp-pubkey.
func openEnclave(cCtx *cli.Context, spPub *ecdsa.PublicKey) (*enclave, error) {
	logger := flags.SetupLogger(cCtx)

	cfg, err := flags.PlatformConfig(cCtx)
	if err != nil {
		return nil, err
	}
	root, err := flags.RootSecret(cCtx)
	if err != nil {
		return nil, err
	}
	cfg.Root = root
	p, err := platform.New(cfg)
	cryptoutils.Wipe(root)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform: %w", err)
	}

	e, err := startEnclave(cCtx, logger, p, spPub)
	if err != nil {
		if d, ok := p.(interface{ Destroy() }); ok {
			d.Destroy()
		}
		return nil, err
	}
	return e, nil
}

func startEnclave(cCtx *cli.Context, logger *slog.Logger, p platform.Attester, spPub *ecdsa.PublicKey) (*enclave, error) {
	if spPub == nil {
		var err error
		if spPub, err = spPublicKey(cCtx, logger); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	exchange := attestation.NewExchange(logger, nil)
	core, err := kms.New(p, exchange, kms.Config{
		SPPublicKey: spPub,
		Log:         logger,
		Metrics:     metrics.NewMetrics(common.PackageName, registry),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start enclave: %w", err)
	}

	logger.Debug("enclave started", "platform", p.AttestationType().StringID)
	return &enclave{
		Enclave:  core,
		log:      logger,
		platform: p,
		exchange: exchange,
		registry: registry,
	}, nil
}

// spPublicKey loads --sp-pubkey. Without one, key exchanges are bound to
// a throwaway key nobody holds.
func spPublicKey(cCtx *cli.Context, logger *slog.Logger) (*ecdsa.PublicKey, error) {
	pem, err := flags.SPPublicKey(cCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to load verifying party key: %w", err)
	}
	if pem == nil {
		logger.Debug("no verifying party key configured, remote attestation is unusable")
		pub, _, err := cryptoutils.RandomP256Keypair()
		if err != nil {
			return nil, err
		}
		pem = pub
	}
	return pem.ECDSA()
}

// withEnclave runs fn on a core opened from the global flags.
func withEnclave(fn func(cCtx *cli.Context, e *enclave) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		e, err := openEnclave(cCtx, nil)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cCtx, e)
	}
}
