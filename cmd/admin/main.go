package main

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/httpserver"
	"github.com/urfave/cli/v2"
)

var flagAdminServer = &cli.StringFlag{
	Name:    "admin-server-addr",
	Value:   "http://127.0.0.1:8080/admin",
	EnvVars: []string{"EHSM_ADMIN_SERVER"},
	Usage:   "Admin API base URL of the bootstrapping enclave host",
}
var flagAdminPrivkey = &cli.StringFlag{
	Name:  "admin-privkey-file",
	Value: "admin-private.pem",
	Usage: "Path to admin private key",
}
var flagAdminPubkey = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.pem",
	Usage: "Path to admin public key",
}
var flagAdminsConfig = &cli.StringFlag{
	Name:  "admins-file",
	Value: "ehsm-admins.json",
	Usage: "Path to the admin keys configuration",
}
var flagShareFile = &cli.StringFlag{
	Name:  "share-file",
	Value: "ehsm-share.json",
	Usage: "Path to file holding this admin's wrapped share",
}
var flagThreshold = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "Number of shares required to reconstruct the root secret",
}

// adminID identifies an admin by the hash of their PEM public key.
func adminID(publicKeyPEM []byte) string {
	h := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(h[:])
}

func loadAdmin(cCtx *cli.Context) (string, cryptoutils.Privkey, *ecdsa.PrivateKey, error) {
	publicKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPubkey.Name))
	if err != nil {
		return "", nil, nil, err
	}
	privateKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
	if err != nil {
		return "", nil, nil, err
	}
	priv, err := cryptoutils.NewPrivkey(privateKeyPEM)
	if err != nil {
		return "", nil, nil, err
	}
	key, err := priv.ECDSA()
	if err != nil {
		return "", nil, nil, err
	}
	return adminID(publicKeyPEM), priv, key, nil
}

func adminClient(cCtx *cli.Context) (*httpserver.AdminClient, cryptoutils.Privkey, error) {
	id, priv, key, err := loadAdmin(cCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load admin keys: %w", err)
	}
	return httpserver.NewAdminClient(cCtx.String(flagAdminServer.Name), id, key), priv, nil
}

var authFlags = []cli.Flag{flagAdminServer, flagAdminPrivkey, flagAdminPubkey}

func main() {
	app := &cli.App{
		Name:           "ehsm-admin",
		Usage:          "Bootstrap and recover the enclave root secret",
		DefaultCommand: "status",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Print the bootstrap state",
				Flags: []cli.Flag{flagAdminServer},
				Action: func(cCtx *cli.Context) error {
					client := httpserver.NewAdminClient(cCtx.String(flagAdminServer.Name), "", nil)
					status, err := client.GetStatus()
					if err != nil {
						return err
					}
					fmt.Println(status)
					return nil
				},
			},
			{
				Name:  "generate-admin",
				Usage: "Generate a P-256 admin keypair",
				Flags: []cli.Flag{flagAdminPrivkey, flagAdminPubkey},
				Action: func(cCtx *cli.Context) error {
					pub, priv, err := cryptoutils.RandomP256Keypair()
					if err != nil {
						return fmt.Errorf("failed to generate admin key: %w", err)
					}
					if err := os.WriteFile(cCtx.String(flagAdminPrivkey.Name), priv, 0600); err != nil {
						return err
					}
					if err := os.WriteFile(cCtx.String(flagAdminPubkey.Name), pub, 0644); err != nil {
						return err
					}
					fmt.Println(adminID(pub))
					return nil
				},
			},
			{
				Name:  "generate-admin-config",
				Usage: "Collect admin public keys into the server's admin configuration",
				Flags: []cli.Flag{
					flagAdminsConfig,
					&cli.StringSliceFlag{
						Name:     "admin-pubkey-files",
						Required: true,
					},
				},
				Action: func(cCtx *cli.Context) error {
					var config httpserver.AdminKeysFile
					for _, path := range cCtx.StringSlice("admin-pubkey-files") {
						publicKeyPEM, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						if _, err := cryptoutils.NewPubkey(publicKeyPEM); err != nil {
							return fmt.Errorf("%s: %w", path, err)
						}
						config.Admins = append(config.Admins, httpserver.AdminKeyEntry{
							ID:     adminID(publicKeyPEM),
							PubKey: string(publicKeyPEM),
						})
					}

					configBytes, err := json.MarshalIndent(config, "", "  ")
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagAdminsConfig.Name), configBytes, 0644)
				},
			},
			{
				Name:  "init-generate",
				Usage: "Generate a fresh root secret split across all admins",
				Flags: append([]cli.Flag{flagThreshold}, authFlags...),
				Action: func(cCtx *cli.Context) error {
					client, _, err := adminClient(cCtx)
					if err != nil {
						return err
					}
					resp, err := client.InitGenerate(cCtx.Int(flagThreshold.Name))
					if err != nil {
						return err
					}
					fmt.Printf("Root secret split into %d shares, %d needed to recover\n", resp.TotalShares, resp.Threshold)
					for id, idx := range resp.Assignments {
						fmt.Printf("  share %d: %s\n", idx, id)
					}
					return nil
				},
			},
			{
				Name:  "init-recovery",
				Usage: "Start collecting shares to reconstruct the root secret",
				Flags: append([]cli.Flag{flagThreshold}, authFlags...),
				Action: func(cCtx *cli.Context) error {
					client, _, err := adminClient(cCtx)
					if err != nil {
						return err
					}
					return client.InitRecover(cCtx.Int(flagThreshold.Name))
				},
			},
			{
				Name:  "fetch-admin-share",
				Usage: "Fetch this admin's wrapped share and store it",
				Flags: append([]cli.Flag{flagShareFile}, authFlags...),
				Action: func(cCtx *cli.Context) error {
					client, _, err := adminClient(cCtx)
					if err != nil {
						return err
					}
					share, err := client.FetchShare()
					if err != nil {
						return err
					}
					shareJSON, err := json.Marshal(share)
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagShareFile.Name), shareJSON, 0600)
				},
			},
			{
				Name:  "submit-admin-share",
				Usage: "Unwrap a stored share and submit it during recovery",
				Flags: append([]cli.Flag{flagShareFile}, authFlags...),
				Action: func(cCtx *cli.Context) error {
					client, priv, err := adminClient(cCtx)
					if err != nil {
						return err
					}

					shareJSON, err := os.ReadFile(cCtx.String(flagShareFile.Name))
					if err != nil {
						return err
					}
					var stored httpserver.ShareResponse
					if err := json.Unmarshal(shareJSON, &stored); err != nil {
						return err
					}
					wrapped, err := base64.StdEncoding.DecodeString(stored.EncryptedShare)
					if err != nil {
						return err
					}

					share, err := cryptoutils.UnwrapWithAdminKey(priv, wrapped)
					if err != nil {
						return fmt.Errorf("failed to unwrap share: %w", err)
					}
					defer cryptoutils.Wipe(share)

					return client.SubmitShare(share)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
