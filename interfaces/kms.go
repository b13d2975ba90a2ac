package interfaces

// KeyOperations is the dispatch table of primitive families. Each method
// receives a validated, internally generated key blob and returns the
// produced bytes; sizing and container handling stay with the caller.
//
// Output layouts:
//   - AES-GCM:  ciphertext || iv(12) || tag(16)
//   - SM4-CTR:  ciphertext || iv(16)
//   - SM4-CBC:  padded ciphertext || iv(16)
type KeyOperations interface {
	AESGCMEncrypt(cmk KeyBlob, aad, plaintext []byte) ([]byte, error)
	AESGCMDecrypt(cmk KeyBlob, aad, ciphertext []byte) ([]byte, error)

	SM4CTREncrypt(cmk KeyBlob, plaintext []byte) ([]byte, error)
	SM4CTRDecrypt(cmk KeyBlob, ciphertext []byte) ([]byte, error)
	SM4CBCEncrypt(cmk KeyBlob, plaintext []byte) ([]byte, error)
	SM4CBCDecrypt(cmk KeyBlob, ciphertext []byte) ([]byte, error)

	RSAEncrypt(cmk KeyBlob, plaintext []byte) ([]byte, error)
	RSADecrypt(cmk KeyBlob, ciphertext []byte) ([]byte, error)
	RSASign(cmk KeyBlob, data []byte) ([]byte, error)
	RSAVerify(cmk KeyBlob, data, signature []byte) (bool, error)

	ECCSign(cmk KeyBlob, data []byte) ([]byte, error)
	ECCVerify(cmk KeyBlob, data, signature []byte) (bool, error)

	SM2Encrypt(cmk KeyBlob, plaintext []byte) ([]byte, error)
	SM2Decrypt(cmk KeyBlob, ciphertext []byte) ([]byte, error)
	SM2Sign(cmk KeyBlob, data []byte) ([]byte, error)
	SM2Verify(cmk KeyBlob, data, signature []byte) (bool, error)
}

// Scratch is an exclusively owned buffer for transient plaintext.
// Destroy zeroes the memory and releases it; it is safe to call twice.
type Scratch interface {
	Bytes() []byte
	Destroy()
}

// ScratchAllocator provides scratch buffers for data-key, credential and
// re-wrap plaintext.
type ScratchAllocator interface {
	Alloc(size int) (Scratch, error)
}
