package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/urfave/cli/v2"
)

var (
	flagKey = &cli.StringFlag{
		Name:     "key",
		Usage:    "key blob file",
		Required: true,
	}
	flagIn = &cli.StringFlag{
		Name:     "in",
		Usage:    "input file",
		Required: true,
	}
	flagOut = &cli.StringFlag{
		Name:     "out",
		Usage:    "output file",
		Required: true,
	}
	flagAAD = &cli.StringFlag{
		Name:  "aad",
		Usage: "file with additional authenticated data",
	}
)

// statusError reports an entry point failure with its status code.
func statusError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed with %s: %w", op, interfaces.StatusOf(err), err)
}

func readKey(cCtx *cli.Context, flag *cli.StringFlag) (interfaces.KeyBlob, error) {
	raw, err := os.ReadFile(cCtx.String(flag.Name))
	if err != nil {
		return nil, err
	}
	return interfaces.KeyBlob(raw), nil
}

func readData(path string) (interfaces.Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return interfaces.DataFrom(raw), nil
}

func readAAD(cCtx *cli.Context) (interfaces.Data, error) {
	if cCtx.String(flagAAD.Name) == "" {
		return nil, nil
	}
	return readData(cCtx.String(flagAAD.Name))
}

func writeOut(cCtx *cli.Context, flag *cli.StringFlag, payload []byte) error {
	return os.WriteFile(cCtx.String(flag.Name), payload, 0600)
}

// twoPhase asks op for the output length, then runs it on a buffer of
// exactly that size. The result is trimmed to the produced length.
func twoPhase(op func(out interfaces.Data) error) (interfaces.Data, error) {
	query := interfaces.NewData(0)
	if err := op(query); err != nil {
		return nil, err
	}
	out := interfaces.NewData(query.Len())
	if err := op(out); err != nil {
		return nil, err
	}
	return interfaces.DataFrom(out.Payload()), nil
}

var createKeyCommand = &cli.Command{
	Name:  "create-key",
	Usage: "Generate a key and store its sealed blob",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "spec",
			Usage:    "keyspec, e.g. EH_AES_GCM_256, EH_RSA_3072, EH_EC_P256, EH_SM2, EH_SM4_CBC",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "padding",
			Value: interfaces.PaddingNone.String(),
			Usage: "RSA padding mode",
		},
		&cli.StringFlag{
			Name:  "digest",
			Value: interfaces.DigestSHA256.String(),
			Usage: "digest used when signing",
		},
		flagOut,
	},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		spec, err := interfaces.ParseKeySpec(cCtx.String("spec"))
		if err != nil {
			return err
		}
		padding, err := interfaces.ParsePaddingMode(cCtx.String("padding"))
		if err != nil {
			return err
		}
		digest, err := interfaces.ParseDigestMode(cCtx.String("digest"))
		if err != nil {
			return err
		}

		purpose := interfaces.PurposeEncryptDecrypt
		if spec.Family() == interfaces.FamilyECC {
			purpose = interfaces.PurposeSignVerify
		}
		md := interfaces.KeyMetadata{
			KeySpec:     spec,
			DigestMode:  digest,
			PaddingMode: padding,
			Origin:      interfaces.OriginInternal,
			Purpose:     purpose,
		}

		query := interfaces.NewKeyBlob(md, 0)
		if err := e.CreateKey(query); err != nil {
			return statusError("create_key", err)
		}
		blob := interfaces.NewKeyBlob(md, query.DeclaredLen())
		if err := e.CreateKey(blob); err != nil {
			return statusError("create_key", err)
		}
		return writeOut(cCtx, flagOut, blob)
	}),
}

var encryptCommand = &cli.Command{
	Name:  "encrypt",
	Usage: "Encrypt a file with a symmetric key",
	Flags: []cli.Flag{flagKey, flagIn, flagOut, flagAAD},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		aad, err := readAAD(cCtx)
		if err != nil {
			return err
		}
		pt, err := readData(cCtx.String(flagIn.Name))
		if err != nil {
			return err
		}
		ct, err := twoPhase(func(out interfaces.Data) error { return e.Encrypt(cmk, aad, pt, out) })
		if err != nil {
			return statusError("encrypt", err)
		}
		return writeOut(cCtx, flagOut, ct.Payload())
	}),
}

var decryptCommand = &cli.Command{
	Name:  "decrypt",
	Usage: "Decrypt a file with a symmetric key",
	Flags: []cli.Flag{flagKey, flagIn, flagOut, flagAAD},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		aad, err := readAAD(cCtx)
		if err != nil {
			return err
		}
		ct, err := readData(cCtx.String(flagIn.Name))
		if err != nil {
			return err
		}
		pt, err := twoPhase(func(out interfaces.Data) error { return e.Decrypt(cmk, aad, ct, out) })
		if err != nil {
			return statusError("decrypt", err)
		}
		return writeOut(cCtx, flagOut, pt.Payload())
	}),
}

var asymEncryptCommand = &cli.Command{
	Name:  "asym-encrypt",
	Usage: "Encrypt a file with an RSA or SM2 key",
	Flags: []cli.Flag{flagKey, flagIn, flagOut},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		pt, err := readData(cCtx.String(flagIn.Name))
		if err != nil {
			return err
		}
		ct, err := twoPhase(func(out interfaces.Data) error { return e.AsymmetricEncrypt(cmk, pt, out) })
		if err != nil {
			return statusError("asymmetric_encrypt", err)
		}
		return writeOut(cCtx, flagOut, ct.Payload())
	}),
}

var asymDecryptCommand = &cli.Command{
	Name:  "asym-decrypt",
	Usage: "Decrypt a file with an RSA or SM2 key",
	Flags: []cli.Flag{flagKey, flagIn, flagOut},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		ct, err := readData(cCtx.String(flagIn.Name))
		if err != nil {
			return err
		}
		pt, err := twoPhase(func(out interfaces.Data) error { return e.AsymmetricDecrypt(cmk, ct, out) })
		if err != nil {
			return statusError("asymmetric_decrypt", err)
		}
		return writeOut(cCtx, flagOut, pt.Payload())
	}),
}

var signCommand = &cli.Command{
	Name:  "sign",
	Usage: "Sign a file",
	Flags: []cli.Flag{flagKey, flagIn, flagOut},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		data, err := readData(cCtx.String(flagIn.Name))
		if err != nil {
			return err
		}
		sig, err := twoPhase(func(out interfaces.Data) error { return e.Sign(cmk, data, out) })
		if err != nil {
			return statusError("sign", err)
		}
		return writeOut(cCtx, flagOut, sig.Payload())
	}),
}

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "Verify a signature over a file",
	Flags: []cli.Flag{
		flagKey,
		flagIn,
		&cli.StringFlag{
			Name:     "signature",
			Usage:    "signature file",
			Required: true,
		},
	},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		data, err := readData(cCtx.String(flagIn.Name))
		if err != nil {
			return err
		}
		sig, err := readData(cCtx.String("signature"))
		if err != nil {
			return err
		}
		valid, err := e.Verify(cmk, data, sig)
		if err != nil {
			return statusError("verify", err)
		}
		if !valid {
			return cli.Exit("signature is not valid", 1)
		}
		fmt.Println("signature is valid")
		return nil
	}),
}

var generateDataKeyCommand = &cli.Command{
	Name:  "generate-datakey",
	Usage: "Generate a data key wrapped under a symmetric key",
	Flags: []cli.Flag{
		flagKey,
		flagOut,
		flagAAD,
		&cli.UintFlag{
			Name:  "length",
			Value: 32,
			Usage: "data key length in bytes",
		},
		&cli.StringFlag{
			Name:  "plaintext-out",
			Usage: "also write the plaintext data key to this file",
		},
	},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		aad, err := readAAD(cCtx)
		if err != nil {
			return err
		}

		pt := interfaces.NewData(uint32(cCtx.Uint("length")))
		defer clear(pt)
		wrapped, err := twoPhase(func(out interfaces.Data) error { return e.GenerateDataKey(cmk, aad, pt, out) })
		if err != nil {
			return statusError("generate_datakey", err)
		}

		if path := cCtx.String("plaintext-out"); path != "" {
			if err := os.WriteFile(path, pt.Payload(), 0600); err != nil {
				return err
			}
		}
		return writeOut(cCtx, flagOut, wrapped.Payload())
	}),
}

var exportDataKeyCommand = &cli.Command{
	Name:  "export-datakey",
	Usage: "Re-wrap a data key from a symmetric key to an RSA or SM2 key",
	Flags: []cli.Flag{
		flagKey,
		flagIn,
		flagOut,
		flagAAD,
		&cli.StringFlag{
			Name:     "ukey",
			Usage:    "key blob file of the asymmetric key to wrap to",
			Required: true,
		},
	},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		cmk, err := readKey(cCtx, flagKey)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(cCtx.String("ukey"))
		if err != nil {
			return err
		}
		ukey := interfaces.KeyBlob(raw)
		aad, err := readAAD(cCtx)
		if err != nil {
			return err
		}
		wrapped, err := readData(cCtx.String(flagIn.Name))
		if err != nil {
			return err
		}

		out, err := twoPhase(func(out interfaces.Data) error { return e.ExportDataKey(cmk, aad, wrapped, ukey, out) })
		if err != nil {
			return statusError("export_datakey", err)
		}
		return writeOut(cCtx, flagOut, out.Payload())
	}),
}

var randomCommand = &cli.Command{
	Name:  "random",
	Usage: "Print random bytes from the platform as hex",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:  "length",
			Value: 32,
		},
	},
	Action: withEnclave(func(cCtx *cli.Context, e *enclave) error {
		buf := make([]byte, cCtx.Uint("length"))
		if err := e.GetRand(buf); err != nil {
			return statusError("get_rand", err)
		}
		fmt.Println(hex.EncodeToString(buf))
		return nil
	}),
}
