package kms

import (
	"fmt"

	"github.com/ruteri/tee-kms-core/interfaces"
)

// GenerateDataKey draws a fresh data key of plaintext.Len() bytes (1 to
// DataKeyMaxSize) from the platform, returns it in plaintext and wraps it
// under cmk into ciphertext. A zero-length ciphertext container is a size
// query and consumes no randomness.
func (e *Enclave) GenerateDataKey(cmk interfaces.KeyBlob, aad, plaintext, ciphertext interfaces.Data) (err error) {
	defer e.track("generate_datakey")(&err)

	if err := checkKey(cmk); err != nil {
		return err
	}
	if err := checkData("plaintext", plaintext); err != nil {
		return err
	}
	n := plaintext.Len()
	if n == 0 || n > DataKeyMaxSize {
		return invalidf("data key length %d outside [1, %d]", n, DataKeyMaxSize)
	}
	if err := checkAAD(aad); err != nil {
		return err
	}
	if err := checkData("ciphertext", ciphertext); err != nil {
		return err
	}

	spec := cmk.Metadata().KeySpec
	required, ok := SymmetricCiphertextSize(spec, n)
	if !ok {
		return invalidf("keyspec %s cannot wrap data keys", spec)
	}
	if ciphertext.Len() == 0 {
		ciphertext.SetLen(required)
		return nil
	}
	if ciphertext.Len() != required {
		return invalidf("ciphertext length %d, want %d", ciphertext.Len(), required)
	}

	err = e.withScratch(int(n), func(key []byte) error {
		if err := e.platform.ReadRand(key); err != nil {
			return fmt.Errorf("%w: failed to read platform randomness: %v", interfaces.ErrUnexpected, err)
		}
		copy(plaintext.Payload(), key)
		return e.encrypt(cmk, aad, key, ciphertext)
	})
	if err != nil {
		clear(plaintext.Payload())
	}
	return err
}

// ExportDataKey re-wraps a data key from the symmetric key cmk to the
// asymmetric key ukey. The data key plaintext only ever exists in scratch
// memory, which is scrubbed before return.
func (e *Enclave) ExportDataKey(cmk interfaces.KeyBlob, aad, oldWrapped interfaces.Data, ukey interfaces.KeyBlob, newWrapped interfaces.Data) (err error) {
	defer e.track("export_datakey")(&err)

	if err := checkKey(cmk); err != nil {
		return err
	}
	if err := checkAAD(aad); err != nil {
		return err
	}
	if err := checkData("old data key", oldWrapped); err != nil {
		return err
	}
	if err := checkKey(ukey); err != nil {
		return err
	}
	if err := checkData("new data key", newWrapped); err != nil {
		return err
	}

	spec := cmk.Metadata().KeySpec
	if !spec.IsSymmetric() {
		return invalidf("keyspec %s cannot unwrap data keys", spec)
	}
	switch f := ukey.Metadata().KeySpec.Family(); f {
	case interfaces.FamilyRSA, interfaces.FamilySM2:
	default:
		return invalidf("keyspec %s cannot wrap data keys", ukey.Metadata().KeySpec)
	}

	// SM4-CBC strips padding, so the bound may exceed the recovered length.
	bound, ok := SymmetricPlaintextBound(spec, oldWrapped.Len())
	if !ok {
		return invalidf("old data key length %d is not valid for %s", oldWrapped.Len(), spec)
	}

	return e.withScratch(int(interfaces.DataSize(bound)), func(buf []byte) error {
		tmp := interfaces.Data(buf)
		tmp.SetLen(bound)
		if err := e.decrypt(cmk, aad, oldWrapped.Payload(), tmp); err != nil {
			return err
		}
		return e.asymmetricEncrypt(ukey, tmp.Payload(), newWrapped)
	})
}
