package kms

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/ruteri/tee-kms-core/attestation"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// apiKeyAlphabet omits characters that are easy to confuse (I, O, l, o).
const apiKeyAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

// Random bytes at or above this value are rejected so that every
// character of the alphabet is equally likely.
const apiKeyRejectFrom = 256 - 256%len(apiKeyAlphabet)

// GetTargetInfo describes this enclave as a report target.
func (e *Enclave) GetTargetInfo() (ti interfaces.TargetInfo, err error) {
	defer e.track("get_target_info")(&err)

	ti, err = e.platform.TargetInfo()
	if err != nil {
		return interfaces.TargetInfo{}, fmt.Errorf("%w: %v", interfaces.ErrUnexpected, err)
	}
	return ti, nil
}

// CreateReport produces a report about this enclave for target, typically
// the quoting enclave. The report data is all zero.
func (e *Enclave) CreateReport(target *interfaces.TargetInfo) (report *interfaces.Report, err error) {
	defer e.track("create_report")(&err)

	if target == nil {
		return nil, invalidf("target info is required")
	}
	var data interfaces.ReportData
	report, err = e.platform.CreateReport(target, &data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUnexpected, err)
	}
	return report, nil
}

// GetRand fills p with platform randomness.
func (e *Enclave) GetRand(p []byte) (err error) {
	defer e.track("get_rand")(&err)

	if len(p) == 0 {
		return invalidf("random buffer is empty")
	}
	if err := e.platform.ReadRand(p); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrUnexpected, err)
	}
	return nil
}

// InitRA opens a key-exchange context bound to the configured verifying
// party key, using the configured key derivation when there is one.
func (e *Enclave) InitRA(pse bool) (ctx interfaces.RAContext, err error) {
	defer e.track("init_ra")(&err)
	return e.exchange.Init(e.spPub, pse, e.keyDerivation)
}

// GenerateAPIKey fills apikey (1 to APIKeySize bytes) with a fresh
// credential and writes it, encrypted under the session key SK of ctx,
// to the front of cipher as ciphertext || iv || tag.
func (e *Enclave) GenerateAPIKey(ctx interfaces.RAContext, apikey, cipher []byte) (err error) {
	defer e.track("generate_apikey")(&err)

	if len(apikey) == 0 || len(apikey) > APIKeySize {
		return invalidf("api key length %d outside [1, %d]", len(apikey), APIKeySize)
	}
	if len(cipher) < APIKeyCipherMinSize {
		return invalidf("api key cipher buffer %d < %d", len(cipher), APIKeyCipherMinSize)
	}

	defer func() {
		if err != nil {
			clear(apikey)
		}
	}()

	if err := e.fillAPIKey(apikey); err != nil {
		return err
	}

	sk, err := e.exchange.GetKey(ctx, interfaces.RAKeySK)
	if err != nil {
		return err
	}
	defer cryptoutils.Wipe(sk[:])

	sealed, err := cryptoutils.SealGCM(sk[:], e.readIV, nil, apikey)
	if err != nil {
		return err
	}
	copy(cipher, sealed)
	cryptoutils.Wipe(sealed)
	return nil
}

// GetAPIKey fills apikey, which must be exactly APIKeySize bytes, with a
// fresh credential.
func (e *Enclave) GetAPIKey(apikey []byte) (err error) {
	defer e.track("get_apikey")(&err)

	if len(apikey) != APIKeySize {
		return invalidf("api key length %d, want %d", len(apikey), APIKeySize)
	}
	if err := e.fillAPIKey(apikey); err != nil {
		clear(apikey)
		return err
	}
	return nil
}

func (e *Enclave) fillAPIKey(dst []byte) error {
	return e.withScratch(len(dst), func(buf []byte) error {
		for i := 0; i < len(dst); {
			if err := e.platform.ReadRand(buf); err != nil {
				return fmt.Errorf("%w: failed to read platform randomness: %v", interfaces.ErrUnexpected, err)
			}
			for _, b := range buf {
				if i == len(dst) {
					break
				}
				if int(b) < apiKeyRejectFrom {
					dst[i] = apiKeyAlphabet[int(b)%len(apiKeyAlphabet)]
					i++
				}
			}
		}
		return nil
	})
}

func (e *Enclave) readIV(n int) ([]byte, error) {
	iv := make([]byte, n)
	if err := e.platform.ReadRand(iv); err != nil {
		return nil, fmt.Errorf("%w: failed to read platform randomness: %v", interfaces.ErrUnexpected, err)
	}
	return iv, nil
}

// VerifyAttResultMAC checks mac against AES-CMAC of msg under the session
// key MK of ctx. The comparison is constant time.
func (e *Enclave) VerifyAttResultMAC(ctx interfaces.RAContext, msg, mac []byte) (err error) {
	defer e.track("verify_att_result_mac")(&err)

	if len(mac) != AttResultMACSize {
		return invalidf("mac length %d, want %d", len(mac), AttResultMACSize)
	}
	if uint64(len(msg)) > math.MaxUint32 {
		return invalidf("message of %d bytes is too long", len(msg))
	}

	mk, err := e.exchange.GetKey(ctx, interfaces.RAKeyMK)
	if err != nil {
		return err
	}
	defer cryptoutils.Wipe(mk[:])

	expected, err := attestation.CMAC(mk, msg)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected[:], mac) != 1 {
		return interfaces.ErrMACMismatch
	}
	return nil
}

// VerifyQuotePolicy checks the signer and measurement of quote against
// lowercase hex expectations. Identity fields are public, so the
// comparison is a plain one.
func (e *Enclave) VerifyQuotePolicy(quote []byte, signerHex, measurementHex string) (err error) {
	defer e.track("verify_quote_policy")(&err)

	if len(quote) == 0 {
		return invalidf("quote is empty")
	}
	id, err := cryptoutils.ParseQuote(quote)
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrInvalidParameter, err)
	}

	signer := hex.EncodeToString(id.Signer)
	measurement := hex.EncodeToString(id.Measurement)
	if len(signer) != len(signerHex) || len(measurement) != len(measurementHex) {
		return fmt.Errorf("%w: quote identity length mismatch", interfaces.ErrUnexpected)
	}
	if signer != signerHex {
		return fmt.Errorf("%w: signer %s is not %s", interfaces.ErrUnexpected, signer, signerHex)
	}
	if measurement != measurementHex {
		return fmt.Errorf("%w: measurement %s is not %s", interfaces.ErrUnexpected, measurement, measurementHex)
	}
	return nil
}
