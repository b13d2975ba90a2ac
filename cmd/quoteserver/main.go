package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/tee-kms-core/cmd/flags"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/httpserver"
	"github.com/ruteri/tee-kms-core/platform"
	"github.com/urfave/cli/v2"
)

var QuoteServiceLogFlag = flags.LogServiceFlagFn("quote-server")

var QuoteListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8081",
	EnvVars: []string{"EHSM_QUOTE_LISTEN_ADDR"},
	Usage:   "address to serve quotes on",
}

func main() {
	app := &cli.App{
		Name:  "quote-server",
		Usage: "Serve platform quotes to enclave hosts without quoting hardware",
		Flags: append(append([]cli.Flag{QuoteListenAddrFlag, QuoteServiceLogFlag}, flags.PlatformFlags...), flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(QuoteListenAddrFlag.Name)
			logger := flags.SetupLogger(cCtx)

			cfg, err := flags.PlatformConfig(cCtx)
			if err != nil {
				return err
			}
			if cfg.Kind == platform.KindRemote {
				return cli.Exit("a quote server cannot forward to another quote server", 1)
			}
			root, err := flags.RootSecret(cCtx)
			if err != nil {
				return err
			}
			cfg.Root = root
			p, err := platform.New(cfg)
			cryptoutils.Wipe(root)
			if err != nil {
				logger.Error("Failed to create platform", "err", err)
				return err
			}
			if d, ok := p.(interface{ Destroy() }); ok {
				defer d.Destroy()
			}
			logger.Info("Platform ready", "attestation", p.AttestationType().StringID)

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), httpserver.NewQuoteHandler(logger, p), nil)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
