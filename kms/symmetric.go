package kms

import (
	"fmt"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// Encrypt encrypts plaintext (1 to EncryptMaxSize bytes) under a symmetric
// key. A zero-length ciphertext container is a size query; otherwise its
// declared length must equal the exact ciphertext size. AAD is bound by
// AES-GCM and ignored by the SM4 modes.
func (e *Enclave) Encrypt(cmk interfaces.KeyBlob, aad, plaintext, ciphertext interfaces.Data) (err error) {
	defer e.track("encrypt")(&err)

	if err := checkKey(cmk); err != nil {
		return err
	}
	if err := checkAAD(aad); err != nil {
		return err
	}
	if err := checkData("plaintext", plaintext); err != nil {
		return err
	}
	if n := plaintext.Len(); n == 0 || n > EncryptMaxSize {
		return invalidf("plaintext length %d outside [1, %d]", n, EncryptMaxSize)
	}
	if err := checkData("ciphertext", ciphertext); err != nil {
		return err
	}
	return e.encrypt(cmk, aad, plaintext.Payload(), ciphertext)
}

// encrypt dispatches a validated symmetric encryption.
func (e *Enclave) encrypt(cmk interfaces.KeyBlob, aad interfaces.Data, plaintext []byte, ciphertext interfaces.Data) error {
	spec := cmk.Metadata().KeySpec
	required, ok := SymmetricCiphertextSize(spec, uint32(len(plaintext)))
	if !ok {
		return invalidf("keyspec %s does not support symmetric encryption", spec)
	}
	if ciphertext.Len() == 0 {
		ciphertext.SetLen(required)
		return nil
	}
	if ciphertext.Len() != required {
		return invalidf("ciphertext length %d, want %d", ciphertext.Len(), required)
	}

	var out []byte
	var err error
	switch spec.Family() {
	case interfaces.FamilyAESGCM:
		out, err = e.ops.AESGCMEncrypt(cmk, aad.Payload(), plaintext)
	case interfaces.FamilySM4CTR:
		out, err = e.ops.SM4CTREncrypt(cmk, plaintext)
	case interfaces.FamilySM4CBC:
		out, err = e.ops.SM4CBCEncrypt(cmk, plaintext)
	default:
		return invalidf("keyspec %s does not support symmetric encryption", spec)
	}
	if err != nil {
		return err
	}
	if uint32(len(out)) != required {
		return fmt.Errorf("%w: primitive produced %d bytes, want %d", interfaces.ErrUnexpected, len(out), required)
	}
	return writeOutput(ciphertext, out)
}

// Decrypt reverses Encrypt. A zero-length plaintext container is a size
// query that returns the largest possible plaintext; on success the
// declared length is rewritten to the recovered length.
func (e *Enclave) Decrypt(cmk interfaces.KeyBlob, aad, ciphertext, plaintext interfaces.Data) (err error) {
	defer e.track("decrypt")(&err)

	if err := checkKey(cmk); err != nil {
		return err
	}
	if err := checkAAD(aad); err != nil {
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
	return e.decrypt(cmk, aad, ciphertext.Payload(), plaintext)
}

func (e *Enclave) decrypt(cmk interfaces.KeyBlob, aad interfaces.Data, ciphertext []byte, plaintext interfaces.Data) error {
	spec := cmk.Metadata().KeySpec
	if !spec.IsSymmetric() {
		return invalidf("keyspec %s does not support symmetric decryption", spec)
	}
	bound, ok := SymmetricPlaintextBound(spec, uint32(len(ciphertext)))
	if !ok {
		return invalidf("ciphertext length %d is not valid for %s", len(ciphertext), spec)
	}
	if plaintext.Len() == 0 {
		plaintext.SetLen(bound)
		return nil
	}

	var out []byte
	var err error
	switch spec.Family() {
	case interfaces.FamilyAESGCM:
		out, err = e.ops.AESGCMDecrypt(cmk, aad.Payload(), ciphertext)
	case interfaces.FamilySM4CTR:
		out, err = e.ops.SM4CTRDecrypt(cmk, ciphertext)
	case interfaces.FamilySM4CBC:
		out, err = e.ops.SM4CBCDecrypt(cmk, ciphertext)
	default:
		return invalidf("keyspec %s does not support symmetric decryption", spec)
	}
	if err != nil {
		return err
	}
	defer cryptoutils.Wipe(out)
	return writeOutput(plaintext, out)
}
