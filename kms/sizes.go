package kms

import (
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

const (
	// EncryptMaxSize bounds the plaintext accepted by Encrypt.
	EncryptMaxSize = 6 * 1024
	// DataKeyMaxSize bounds the data keys produced by GenerateDataKey.
	DataKeyMaxSize = 1024
	// SM2MaxPlaintext bounds the plaintext accepted by SM2 encryption.
	SM2MaxPlaintext = 255

	APIKeySize          = 32
	APIKeyCipherMinSize = APIKeySize + cryptoutils.GCMIVSize + cryptoutils.GCMTagSize
	AttResultMACSize    = 16
)

// SealedKeySize is the key blob payload length CreateKey produces for
// spec, or 0 for unsupported keyspecs.
func SealedKeySize(spec interfaces.KeySpec) uint32 {
	n := cryptoutils.RawKeySize(spec)
	if n == 0 {
		return 0
	}
	return uint32(cryptoutils.SealedSize(n))
}

// SymmetricCiphertextSize is the exact ciphertext length for n plaintext
// bytes under a symmetric keyspec.
func SymmetricCiphertextSize(spec interfaces.KeySpec, n uint32) (uint32, bool) {
	switch spec.Family() {
	case interfaces.FamilyAESGCM:
		return n + cryptoutils.AESGCMOverhead, true
	case interfaces.FamilySM4CTR:
		return n + cryptoutils.SM4IVSize, true
	case interfaces.FamilySM4CBC:
		return uint32(cryptoutils.SM4CBCCiphertextSize(int(n))), true
	default:
		return 0, false
	}
}

// SymmetricPlaintextBound is the largest plaintext that n ciphertext bytes
// can decrypt to. It is exact except for SM4-CBC, where padding is
// stripped. ok is false when n cannot be a valid ciphertext.
func SymmetricPlaintextBound(spec interfaces.KeySpec, n uint32) (uint32, bool) {
	switch spec.Family() {
	case interfaces.FamilyAESGCM:
		return n - cryptoutils.AESGCMOverhead, n > cryptoutils.AESGCMOverhead
	case interfaces.FamilySM4CTR:
		return n - cryptoutils.SM4IVSize, n > cryptoutils.SM4IVSize
	case interfaces.FamilySM4CBC:
		ok := n >= cryptoutils.SM4IVSize+cryptoutils.SM4BlockSize && (n-cryptoutils.SM4IVSize)%cryptoutils.SM4BlockSize == 0
		return n - cryptoutils.SM4IVSize, ok
	default:
		return 0, false
	}
}

// MaxAsymmetricPlaintext is the largest plaintext AsymmetricEncrypt
// accepts for the keyspec and padding, or 0 when the combination cannot
// encrypt.
func MaxAsymmetricPlaintext(spec interfaces.KeySpec, padding interfaces.PaddingMode) uint32 {
	switch spec.Family() {
	case interfaces.FamilyRSA:
		overhead, ok := cryptoutils.RSAPaddingOverhead(padding)
		if !ok {
			return 0
		}
		return uint32(spec.RSABits()/8 - overhead)
	case interfaces.FamilySM2:
		return SM2MaxPlaintext
	default:
		return 0
	}
}

// AsymmetricCiphertextSize is the ciphertext length for n plaintext bytes.
func AsymmetricCiphertextSize(spec interfaces.KeySpec, n uint32) (uint32, bool) {
	switch spec.Family() {
	case interfaces.FamilyRSA:
		return uint32(spec.RSABits() / 8), true
	case interfaces.FamilySM2:
		return n + cryptoutils.SM2Overhead, true
	default:
		return 0, false
	}
}

// SignatureSize is the signature length Sign expects to be declared. For
// RSA it is exact; for ECDSA and SM2 it is the DER maximum.
func SignatureSize(spec interfaces.KeySpec) (uint32, bool) {
	switch spec {
	case interfaces.KeySpecRSA2048, interfaces.KeySpecRSA3072, interfaces.KeySpecRSA4096:
		return uint32(spec.RSABits() / 8), true
	case interfaces.KeySpecECP224:
		return 64, true
	case interfaces.KeySpecECP256:
		return 72, true
	case interfaces.KeySpecECP384:
		return 104, true
	case interfaces.KeySpecECP521:
		return 139, true
	case interfaces.KeySpecSM2:
		return 72, true
	default:
		return 0, false
	}
}
