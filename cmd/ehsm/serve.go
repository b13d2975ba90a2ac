package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ruteri/tee-kms-core/cmd/flags"
	"github.com/ruteri/tee-kms-core/httpserver"
	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/urfave/cli/v2"
)

var flagListenAddr = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	EnvVars: []string{"EHSM_LISTEN_ADDR"},
	Usage:   "address to serve the admin API and quotes on",
}
var flagAdminKeysFile = &cli.StringFlag{
	Name:     "admin-keys-file",
	EnvVars:  []string{"EHSM_ADMIN_KEYS_FILE"},
	Usage:    "JSON file with the admin public keys holding root secret shares",
	Required: true,
}
var flagBootstrapTimeout = &cli.DurationFlag{
	Name:  "bootstrap-timeout",
	Value: 24 * time.Hour,
	Usage: "how long to wait for admins to unlock the root secret",
}

// serveCommand brings the enclave up from a Shamir-shared root secret. The
// admin API is served until enough admins have unlocked the root, then the
// core starts on it and the host additionally serves quotes and metrics.
var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Bootstrap the root secret with the admins and serve the enclave",
	Flags: []cli.Flag{flagListenAddr, flagAdminKeysFile, flagBootstrapTimeout},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		listenAddr := cCtx.String(flagListenAddr.Name)

		platformCfg, err := flags.PlatformConfig(cCtx)
		if err != nil {
			return err
		}

		f, err := os.Open(cCtx.String(flagAdminKeysFile.Name))
		if err != nil {
			return err
		}
		adminKeys, err := httpserver.LoadAdminKeys(f)
		f.Close()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		admin := httpserver.NewAdminHandler(logger, adminKeys)
		if err := bootstrap(ctx, cCtx, logger, admin, listenAddr); err != nil {
			return err
		}
		defer admin.Root().Wipe()

		p, err := admin.Root().Platform(platformCfg)
		if err != nil {
			return fmt.Errorf("failed to create platform: %w", err)
		}
		e, err := startEnclave(cCtx, logger, p, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := selfTest(e); err != nil {
			logger.Error("Enclave self test failed", "err", err)
			return err
		}
		logger.Info("Enclave started", "attestation", p.AttestationType().StringID)

		e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		serverCfg := flags.ConfigureServer(cCtx, logger, listenAddr)
		serverCfg.Gatherer = e.registry
		server, err := httpserver.New(serverCfg, httpserver.NewQuoteHandler(logger, p), admin)
		if err != nil {
			logger.Error("Failed to create server", "err", err)
			return err
		}
		server.RunInBackground()

		logger.Info("Server is running, press Ctrl+C to stop")
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		server.Shutdown()
		logger.Info("Server shutdown complete")
		return nil
	},
}

// bootstrap serves the admin API alone until the root secret is unlocked.
func bootstrap(ctx context.Context, cCtx *cli.Context, logger *slog.Logger, admin *httpserver.AdminHandler, listenAddr string) error {
	cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
	cfg.MetricsAddr = ""
	server, err := httpserver.New(cfg, nil, admin)
	if err != nil {
		return err
	}
	server.RunInBackground()
	defer server.Shutdown()

	logger.Info("Waiting for admins to unlock the root secret", "listenAddr", listenAddr)

	ctx, cancel := context.WithTimeout(ctx, cCtx.Duration(flagBootstrapTimeout.Name))
	defer cancel()
	if err := admin.WaitForBootstrap(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("root secret was not unlocked within %s", cCtx.Duration(flagBootstrapTimeout.Name))
		}
		return err
	}

	logger.Info("Root secret unlocked")
	return nil
}

// selfTest round-trips a message through a throwaway key.
func selfTest(e *enclave) error {
	md := interfaces.KeyMetadata{
		KeySpec: interfaces.KeySpecAESGCM256,
		Origin:  interfaces.OriginInternal,
		Purpose: interfaces.PurposeEncryptDecrypt,
	}
	query := interfaces.NewKeyBlob(md, 0)
	if err := e.CreateKey(query); err != nil {
		return statusError("create_key", err)
	}
	cmk := interfaces.NewKeyBlob(md, query.DeclaredLen())
	if err := e.CreateKey(cmk); err != nil {
		return statusError("create_key", err)
	}

	msg := []byte("ehsm self test")
	ct, err := twoPhase(func(out interfaces.Data) error { return e.Encrypt(cmk, nil, interfaces.DataFrom(msg), out) })
	if err != nil {
		return statusError("encrypt", err)
	}
	pt, err := twoPhase(func(out interfaces.Data) error { return e.Decrypt(cmk, nil, ct, out) })
	if err != nil {
		return statusError("decrypt", err)
	}
	if !bytes.Equal(pt.Payload(), msg) {
		return errors.New("self test round trip mismatch")
	}
	return nil
}
