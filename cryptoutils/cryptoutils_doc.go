// Package cryptoutils provides the primitive families behind the enclave
// dispatch table, key sealing, and quote formats.
//
// # Primitive Families
//
// Primitives implements interfaces.KeyOperations. Each call unseals the
// key blob, runs one primitive and wipes the raw key material:
//
//   - AES-GCM (128/192/256): ciphertext || iv (12 bytes) || tag (16 bytes)
//   - SM4-CTR: ciphertext || iv (16 bytes)
//   - SM4-CBC: PKCS#7 padded ciphertext || iv (16 bytes)
//   - RSA (2048/3072/4096): PKCS #1 v1.5, OAEP (SHA-1) or raw encryption;
//     PKCS #1 v1.5 or PSS signatures
//   - ECDSA (P-224/256/384/521): ASN.1 DER signatures
//   - SM2: C1C3C2 encryption and DER signatures with SM3
//
// # Sealing
//
// Key material is sealed with AES-256-GCM under the platform sealing key:
//
//	[iv (12 bytes)][ciphertext][tag (16 bytes)]
//
// The key blob metadata is the additional authenticated data, so changing
// the keyspec, padding, digest or origin of a sealed blob makes it unusable.
//
// Raw key material uses fixed-width encodings so every keyspec has a known
// sealed size:
//
//   - symmetric keys: the key bytes
//   - RSA: public exponent (4 bytes) || p || q, primes padded to half the modulus
//   - ECDSA and SM2: the private scalar padded to the curve size
//
// # Quotes
//
// ParseQuote extracts the measurement, signer and report data from either a
// native quote (version 3, a report body signed by the platform quoting
// key) or a TDX v4 quote, where the measurement is MRTD and the signer is
// MROWNER. VerifyNativeQuote and VerifyDCAPAttestation also check the
// signatures.
package cryptoutils
