// Package kms provides the trusted key-management core of an enclave HSM.
//
// Enclave exposes the entry points an untrusted host calls across the
// enclave boundary. Every entry point takes caller-owned containers,
// validates their declared sizes before touching a payload, dispatches by
// keyspec to the primitive layer and maps any failure to one of the fixed
// statuses in interfaces.Status:
//
//	// Key lifecycle
//	CreateKey(cmk KeyBlob) error
//
//	// Symmetric and asymmetric cryptography
//	Encrypt(cmk KeyBlob, aad, plaintext, ciphertext Data) error
//	Decrypt(cmk KeyBlob, aad, ciphertext, plaintext Data) error
//	AsymmetricEncrypt(cmk KeyBlob, plaintext, ciphertext Data) error
//	AsymmetricDecrypt(cmk KeyBlob, ciphertext, plaintext Data) error
//	Sign(cmk KeyBlob, data, signature Data) error
//	Verify(cmk KeyBlob, data, signature Data) (bool, error)
//
//	// Data keys
//	GenerateDataKey(cmk KeyBlob, aad, plaintext, ciphertext Data) error
//	ExportDataKey(cmk KeyBlob, aad, oldWrapped Data, ukey KeyBlob, newWrapped Data) error
//
//	// Attestation and API keys
//	GetTargetInfo() (TargetInfo, error)
//	CreateReport(target *TargetInfo) (*Report, error)
//	InitRA(pse bool) (RAContext, error)
//	GenerateAPIKey(ctx RAContext, apikey, cipher []byte) error
//	VerifyAttResultMAC(ctx RAContext, message, mac []byte) error
//	VerifyQuotePolicy(quote []byte, signer, measurement string) error
//
// # Size Queries
//
// An output container with a declared length of zero is a size query: the
// entry point writes the required length and returns without consuming
// randomness or touching key material. Otherwise the declared length must
// match what the operation produces, exactly for fixed-size outputs and as
// an upper bound where the output length depends on the input.
//
// # Transient Plaintext
//
// Plaintext key material and intermediate plaintexts live in scratch
// buffers from a ScratchAllocator and are erased on every path. The default
// LockedAllocator uses memguard buffers that are locked in memory.
package kms
