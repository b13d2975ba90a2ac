package main

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ruteri/tee-kms-core/attestation"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/ruteri/tee-kms-core/kms"
	"github.com/urfave/cli/v2"
)

var apiKeyCommand = &cli.Command{
	Name:  "apikey",
	Usage: "Print a fresh API credential",
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		apikey := make([]byte, kms.APIKeySize)
		if err := e.GetAPIKey(apikey); err != nil {
			return statusError("get_apikey", err)
		}
		fmt.Println(string(apikey))
		return nil
	}),
}

var reportCommand = &cli.Command{
	Name:  "report",
	Usage: "Print a local report targeted at the enclave itself",
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		ti, err := e.GetTargetInfo()
		if err != nil {
			return statusError("get_target_info", err)
		}
		report, err := e.CreateReport(&ti)
		if err != nil {
			return statusError("create_report", err)
		}
		raw, err := report.MarshalBinary()
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(raw))
		return nil
	}),
}

// attestResult is printed by the attest command.
type attestResult struct {
	Context      uint32 `json:"context"`
	Attestation  string `json:"attestation_type"`
	Measurement  string `json:"measurement"`
	Signer       string `json:"signer"`
	APIKey       string `json:"apikey"`
	APIKeyCipher string `json:"apikey_cipher"`
}

// attestCommand plays the verifying party against a local enclave: it runs
// the key exchange, checks the quote and provisions an API credential
// over the session.
var attestCommand = &cli.Command{
	Name:  "attest",
	Usage: "Run a key exchange with a local enclave and provision an API key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "sp-privkey",
			Usage:    "PEM file with the verifying party's P-256 private key",
			Required: true,
		},
		&cli.UintFlag{
			Name:  "apikey-length",
			Value: kms.APIKeySize,
		},
	},
	Action: func(cCtx *cli.Context) error {
		raw, err := os.ReadFile(cCtx.String("sp-privkey"))
		if err != nil {
			return err
		}
		spPriv, err := cryptoutils.NewPrivkey(raw)
		if err != nil {
			return err
		}
		spKey, err := spPriv.ECDSA()
		if err != nil {
			return err
		}

		e, err := openEnclave(cCtx, &spKey.PublicKey)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, err := e.InitRA(false)
		if err != nil {
			return statusError("init_ra", err)
		}
		defer func() {
			if err := e.exchange.Close(ctx); err != nil {
				e.log.Warn("failed to close key exchange context", "err", err)
			}
		}()

		msg1, err := e.exchange.Msg1(ctx)
		if err != nil {
			return err
		}
		sp := attestation.NewServiceProvider(spKey, nil, nil, 0)
		msg2, session, err := sp.HandleMsg1(msg1)
		if err != nil {
			return err
		}
		msg3, err := e.exchange.ProcessMsg2(ctx, msg2, e.platform)
		if err != nil {
			return err
		}
		if err := session.VerifyMsg3(msg3, quoteVerifier(e)); err != nil {
			return err
		}

		// The enclave checks its own quote against the identity the
		// verifying party saw.
		err = e.VerifyQuotePolicy(msg3.Quote, hex.EncodeToString(session.Identity.Signer), hex.EncodeToString(session.Identity.Measurement))
		if err != nil {
			return statusError("verify_quote_policy", err)
		}

		result := []byte("attestation ok")
		mac, err := session.AttResultMAC(result)
		if err != nil {
			return err
		}
		if err := e.VerifyAttResultMAC(ctx, result, mac[:]); err != nil {
			return statusError("verify_att_result_mac", err)
		}

		apikey := make([]byte, cCtx.Uint("apikey-length"))
		cipher := make([]byte, len(apikey)+cryptoutils.GCMIVSize+cryptoutils.GCMTagSize)
		if len(cipher) < kms.APIKeyCipherMinSize {
			cipher = make([]byte, kms.APIKeyCipherMinSize)
		}
		if err := e.GenerateAPIKey(ctx, apikey, cipher); err != nil {
			return statusError("generate_apikey", err)
		}
		wrapped := cipher[:len(apikey)+cryptoutils.GCMIVSize+cryptoutils.GCMTagSize]
		opened, err := session.DecryptAPIKey(wrapped)
		if err != nil {
			return fmt.Errorf("verifying party cannot open the api key: %w", err)
		}

		out, err := json.MarshalIndent(attestResult{
			Context:      uint32(ctx),
			Attestation:  session.Identity.Type.StringID,
			Measurement:  hex.EncodeToString(session.Identity.Measurement),
			Signer:       hex.EncodeToString(session.Identity.Signer),
			APIKey:       string(opened),
			APIKeyCipher: hex.EncodeToString(wrapped),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// quoteVerifier checks native quotes against the local quoting key and
// TDX quotes against Intel collateral.
func quoteVerifier(e *enclave) attestation.QuoteVerifier {
	return func(quote []byte) (*cryptoutils.QuoteIdentity, error) {
		if q, ok := e.platform.(interface{ QuotingKey() *ecdsa.PublicKey }); ok && e.platform.AttestationType() == cryptoutils.NativeAttestation {
			return cryptoutils.VerifyNativeQuote(quote, q.QuotingKey())
		}

		id, err := cryptoutils.ParseQuote(quote)
		if err != nil {
			return nil, err
		}
		if id.Type != cryptoutils.DCAPAttestation {
			return nil, fmt.Errorf("%w: cannot verify %s quote", interfaces.ErrInvalidParameter, id.Type.StringID)
		}
		var reportData [64]byte
		copy(reportData[:], id.ReportData)
		return cryptoutils.VerifyDCAPAttestation(reportData, quote)
	}
}
