package cryptoutils

import (
	"crypto/cipher"
	"fmt"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/tjfoc/gmsm/sm4"
)

const (
	SM4BlockSize = sm4.BlockSize
	SM4IVSize    = sm4.BlockSize
)

// SM4CBCCiphertextSize is the exact output length of SM4CBCEncrypt for n
// plaintext bytes: PKCS#7 always adds between 1 and 16 bytes.
func SM4CBCCiphertextSize(n int) int {
	return (n/SM4BlockSize+1)*SM4BlockSize + SM4IVSize
}

// SM4CTREncrypt produces ciphertext || iv.
func (p *Primitives) SM4CTREncrypt(cmk interfaces.KeyBlob, plaintext []byte) ([]byte, error) {
	var out []byte
	err := p.withKey(cmk, func(key []byte) error {
		block, err := sm4.NewCipher(key)
		if err != nil {
			return fmt.Errorf("failed to create sm4 cipher: %w", err)
		}
		iv, err := p.readIV(SM4IVSize)
		if err != nil {
			return err
		}
		out = make([]byte, len(plaintext), len(plaintext)+SM4IVSize)
		cipher.NewCTR(block, iv).XORKeyStream(out, plaintext)
		out = append(out, iv...)
		return nil
	})
	return out, err
}

func (p *Primitives) SM4CTRDecrypt(cmk interfaces.KeyBlob, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) <= SM4IVSize {
		return nil, fmt.Errorf("sm4 ciphertext too short: %w", interfaces.ErrInvalidParameter)
	}
	var out []byte
	err := p.withKey(cmk, func(key []byte) error {
		block, err := sm4.NewCipher(key)
		if err != nil {
			return fmt.Errorf("failed to create sm4 cipher: %w", err)
		}
		n := len(ciphertext) - SM4IVSize
		out = make([]byte, n)
		cipher.NewCTR(block, ciphertext[n:]).XORKeyStream(out, ciphertext[:n])
		return nil
	})
	return out, err
}

// SM4CBCEncrypt produces PKCS#7 padded ciphertext || iv.
func (p *Primitives) SM4CBCEncrypt(cmk interfaces.KeyBlob, plaintext []byte) ([]byte, error) {
	var out []byte
	err := p.withKey(cmk, func(key []byte) error {
		block, err := sm4.NewCipher(key)
		if err != nil {
			return fmt.Errorf("failed to create sm4 cipher: %w", err)
		}
		iv, err := p.readIV(SM4IVSize)
		if err != nil {
			return err
		}
		padded := pkcs7Pad(plaintext, SM4BlockSize)
		defer Wipe(padded)

		out = make([]byte, len(padded), len(padded)+SM4IVSize)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
		out = append(out, iv...)
		return nil
	})
	return out, err
}

func (p *Primitives) SM4CBCDecrypt(cmk interfaces.KeyBlob, ciphertext []byte) ([]byte, error) {
	n := len(ciphertext) - SM4IVSize
	if n <= 0 || n%SM4BlockSize != 0 {
		return nil, fmt.Errorf("sm4 ciphertext is not block aligned: %w", interfaces.ErrInvalidParameter)
	}
	var out []byte
	err := p.withKey(cmk, func(key []byte) error {
		block, err := sm4.NewCipher(key)
		if err != nil {
			return fmt.Errorf("failed to create sm4 cipher: %w", err)
		}
		padded := make([]byte, n)
		cipher.NewCBCDecrypter(block, ciphertext[n:]).CryptBlocks(padded, ciphertext[:n])
		unpadded, err := pkcs7Unpad(padded, SM4BlockSize)
		if err != nil {
			Wipe(padded)
			return err
		}
		out = unpadded
		return nil
	})
	return out, err
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrDecrypt
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize {
		return nil, ErrDecrypt
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, ErrDecrypt
		}
	}
	return data[:len(data)-pad], nil
}
