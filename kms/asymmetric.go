package kms

import (
	"fmt"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// AsymmetricEncrypt encrypts under an RSA or SM2 key. The plaintext may not
// exceed MaxAsymmetricPlaintext for the keyspec and padding. A zero-length
// ciphertext container is a size query.
func (e *Enclave) AsymmetricEncrypt(cmk interfaces.KeyBlob, plaintext, ciphertext interfaces.Data) (err error) {
	defer e.track("asymmetric_encrypt")(&err)

	if err := checkKey(cmk); err != nil {
		return err
	}
	if err := checkData("plaintext", plaintext); err != nil {
		return err
	}
	if err := checkData("ciphertext", ciphertext); err != nil {
		return err
	}
	return e.asymmetricEncrypt(cmk, plaintext.Payload(), ciphertext)
}

func (e *Enclave) asymmetricEncrypt(cmk interfaces.KeyBlob, plaintext []byte, ciphertext interfaces.Data) error {
	md := cmk.Metadata()
	n := uint32(len(plaintext))
	max := MaxAsymmetricPlaintext(md.KeySpec, md.PaddingMode)
	if n == 0 || n > max {
		return invalidf("plaintext length %d outside [1, %d] for %s/%s", n, max, md.KeySpec, md.PaddingMode)
	}
	if md.KeySpec.Family() == interfaces.FamilyRSA && md.PaddingMode == interfaces.PaddingNone && n != max {
		return invalidf("raw rsa plaintext must be exactly %d bytes, got %d", max, n)
	}

	required, ok := AsymmetricCiphertextSize(md.KeySpec, n)
	if !ok {
		return invalidf("keyspec %s does not support asymmetric encryption", md.KeySpec)
	}
	if ciphertext.Len() == 0 {
		ciphertext.SetLen(required)
		return nil
	}
	if ciphertext.Len() < required {
		return invalidf("ciphertext length %d, want %d", ciphertext.Len(), required)
	}

	var out []byte
	var err error
	switch md.KeySpec.Family() {
	case interfaces.FamilyRSA:
		out, err = e.ops.RSAEncrypt(cmk, plaintext)
	case interfaces.FamilySM2:
		out, err = e.ops.SM2Encrypt(cmk, plaintext)
	default:
		return invalidf("keyspec %s does not support asymmetric encryption", md.KeySpec)
	}
	if err != nil {
		return err
	}
	if uint32(len(out)) > required {
		return fmt.Errorf("%w: primitive produced %d bytes, want at most %d", interfaces.ErrUnexpected, len(out), required)
	}
	return writeOutput(ciphertext, out)
}

// AsymmetricDecrypt reverses AsymmetricEncrypt. A zero-length plaintext
// container is a size query that returns an upper bound; on success the
// declared length is rewritten to the recovered length.
func (e *Enclave) AsymmetricDecrypt(cmk interfaces.KeyBlob, ciphertext, plaintext interfaces.Data) (err error) {
	defer e.track("asymmetric_decrypt")(&err)

	if err := checkKey(cmk); err != nil {
		return err
	}
	if err := checkData("plaintext", plaintext); err != nil {
		return err
	}
	if err := checkData("ciphertext", ciphertext); err != nil {
		return err
	}
	if ciphertext.Len() == 0 {
		return invalidf("ciphertext is empty")
	}

	md := cmk.Metadata()
	ct := ciphertext.Payload()
	var bound uint32
	switch md.KeySpec.Family() {
	case interfaces.FamilyRSA:
		size := uint32(md.KeySpec.RSABits() / 8)
		overhead, ok := cryptoutils.RSAPaddingOverhead(md.PaddingMode)
		if !ok {
			return invalidf("padding %s cannot decrypt", md.PaddingMode)
		}
		if uint32(len(ct)) != size {
			return invalidf("ciphertext length %d, want %d", len(ct), size)
		}
		bound = size - uint32(overhead)
	case interfaces.FamilySM2:
		if len(ct) <= cryptoutils.SM2Overhead {
			return invalidf("ciphertext length %d too short for sm2", len(ct))
		}
		bound = uint32(len(ct) - cryptoutils.SM2Overhead)
	default:
		return invalidf("keyspec %s does not support asymmetric decryption", md.KeySpec)
	}

	if plaintext.Len() == 0 {
		plaintext.SetLen(bound)
		return nil
	}

	var out []byte
	if md.KeySpec.Family() == interfaces.FamilyRSA {
		out, err = e.ops.RSADecrypt(cmk, ct)
	} else {
		out, err = e.ops.SM2Decrypt(cmk, ct)
	}
	if err != nil {
		return err
	}
	defer cryptoutils.Wipe(out)
	return writeOutput(plaintext, out)
}

// Sign signs data with an RSA, ECDSA or SM2 key. A zero-length signature
// container is a size query; otherwise the declared length must equal
// SignatureSize and is rewritten to the actual signature length.
func (e *Enclave) Sign(cmk interfaces.KeyBlob, data, signature interfaces.Data) (err error) {
	defer e.track("sign")(&err)

	if err := checkKey(cmk); err != nil {
		return err
	}
	if err := checkData("signature", signature); err != nil {
		return err
	}

	spec := cmk.Metadata().KeySpec
	size, ok := SignatureSize(spec)
	if !ok {
		return invalidf("keyspec %s does not support signing", spec)
	}
	if signature.Len() == 0 {
		signature.SetLen(size)
		return nil
	}
	if signature.Len() != size {
		return invalidf("signature length %d, want %d", signature.Len(), size)
	}
	if err := checkData("data", data); err != nil {
		return err
	}
	if data.Len() == 0 {
		return invalidf("data is empty")
	}

	var sig []byte
	switch spec.Family() {
	case interfaces.FamilyRSA:
		sig, err = e.ops.RSASign(cmk, data.Payload())
	case interfaces.FamilyECC:
		sig, err = e.ops.ECCSign(cmk, data.Payload())
	case interfaces.FamilySM2:
		sig, err = e.ops.SM2Sign(cmk, data.Payload())
	default:
		return invalidf("keyspec %s does not support signing", spec)
	}
	if err != nil {
		return err
	}
	if uint32(len(sig)) > size {
		return fmt.Errorf("%w: signature of %d bytes exceeds %d", interfaces.ErrUnexpected, len(sig), size)
	}
	return writeOutput(signature, sig)
}

// Verify checks a signature. Only RSA signatures have a fixed length; a
// wrong RSA signature length is a parameter error rather than a mismatch.
func (e *Enclave) Verify(cmk interfaces.KeyBlob, data, signature interfaces.Data) (valid bool, err error) {
	defer e.track("verify")(&err)

	if err := checkKey(cmk); err != nil {
		return false, err
	}
	if err := checkData("signature", signature); err != nil {
		return false, err
	}
	if signature.Len() == 0 {
		return false, invalidf("signature is empty")
	}
	if err := checkData("data", data); err != nil {
		return false, err
	}
	if data.Len() == 0 {
		return false, invalidf("data is empty")
	}

	spec := cmk.Metadata().KeySpec
	switch spec.Family() {
	case interfaces.FamilyRSA:
		if size, _ := SignatureSize(spec); signature.Len() != size {
			return false, invalidf("signature length %d, want %d", signature.Len(), size)
		}
		return e.ops.RSAVerify(cmk, data.Payload(), signature.Payload())
	case interfaces.FamilyECC:
		return e.ops.ECCVerify(cmk, data.Payload(), signature.Payload())
	case interfaces.FamilySM2:
		return e.ops.SM2Verify(cmk, data.Payload(), signature.Payload())
	default:
		return false, invalidf("keyspec %s does not support verification", spec)
	}
}
