package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrimitives(t *testing.T) (*Primitives, *Sealer) {
	t.Helper()
	sealer, err := NewSealer(bytes.Repeat([]byte{0x42}, 32), rand.Reader)
	require.NoError(t, err)
	return NewPrimitives(sealer, rand.Reader), sealer
}

func sealedBlob(t *testing.T, sealer *Sealer, md interfaces.KeyMetadata) interfaces.KeyBlob {
	t.Helper()
	material, err := GenerateKeyMaterial(md.KeySpec, rand.Reader)
	require.NoError(t, err)
	defer Wipe(material)

	require.Equal(t, RawKeySize(md.KeySpec), len(material))

	blob := interfaces.NewKeyBlob(md, uint32(SealedSize(len(material))))
	sealed, err := sealer.Seal(blob.MetadataBytes(), material)
	require.NoError(t, err)
	copy(blob.Sealed(), sealed)
	return blob
}

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer(make([]byte, 32), rand.Reader)
	require.NoError(t, err)

	md := []byte("metadata")
	sealed, err := sealer.Seal(md, []byte("key material"))
	require.NoError(t, err)
	require.Len(t, sealed, SealedSize(len("key material")))

	opened, err := sealer.Open(md, sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("key material"), opened)

	_, err = sealer.Open([]byte("other"), sealed)
	require.ErrorIs(t, err, ErrUnseal)

	_, err = NewSealer(make([]byte, 16), rand.Reader)
	require.Error(t, err)
}

func TestSymmetricRoundTrip(t *testing.T) {
	p, sealer := newTestPrimitives(t)

	for _, spec := range []interfaces.KeySpec{
		interfaces.KeySpecAESGCM128, interfaces.KeySpecAESGCM192, interfaces.KeySpecAESGCM256,
		interfaces.KeySpecSM4CTR, interfaces.KeySpecSM4CBC,
	} {
		t.Run(spec.String(), func(t *testing.T) {
			blob := sealedBlob(t, sealer, interfaces.KeyMetadata{KeySpec: spec, Origin: interfaces.OriginInternal})

			for _, n := range []int{1, 15, 16, 17, 1024} {
				plaintext := make([]byte, n)
				_, _ = rand.Read(plaintext)

				var ct, pt []byte
				var err error
				switch spec.Family() {
				case interfaces.FamilyAESGCM:
					ct, err = p.AESGCMEncrypt(blob, []byte("aad"), plaintext)
					require.NoError(t, err)
					require.Len(t, ct, n+AESGCMOverhead)
					pt, err = p.AESGCMDecrypt(blob, []byte("aad"), ct)
					require.NoError(t, err)

					_, err = p.AESGCMDecrypt(blob, []byte("other"), ct)
					require.ErrorIs(t, err, ErrDecrypt)
					require.Equal(t, interfaces.StatusMACMismatch, interfaces.StatusOf(err))
				case interfaces.FamilySM4CTR:
					ct, err = p.SM4CTREncrypt(blob, plaintext)
					require.NoError(t, err)
					require.Len(t, ct, n+SM4IVSize)
					pt, err = p.SM4CTRDecrypt(blob, ct)
					require.NoError(t, err)
				case interfaces.FamilySM4CBC:
					ct, err = p.SM4CBCEncrypt(blob, plaintext)
					require.NoError(t, err)
					require.Len(t, ct, SM4CBCCiphertextSize(n))
					pt, err = p.SM4CBCDecrypt(blob, ct)
					require.NoError(t, err)
				}
				require.Equal(t, plaintext, pt)
			}
		})
	}
}

func TestMetadataBoundToSealedKey(t *testing.T) {
	p, sealer := newTestPrimitives(t)
	blob := sealedBlob(t, sealer, interfaces.KeyMetadata{KeySpec: interfaces.KeySpecAESGCM256, Origin: interfaces.OriginInternal})

	md := blob.Metadata()
	md.Purpose = interfaces.PurposeSignVerify
	blob.SetMetadata(md)

	_, err := p.AESGCMEncrypt(blob, nil, []byte("data"))
	require.ErrorIs(t, err, ErrUnseal)
}

func TestRSAEncryptDecrypt(t *testing.T) {
	p, sealer := newTestPrimitives(t)

	for _, padding := range []interfaces.PaddingMode{interfaces.PaddingRSAPKCS1, interfaces.PaddingRSAPKCS1OAEP, interfaces.PaddingNone} {
		t.Run(padding.String(), func(t *testing.T) {
			blob := sealedBlob(t, sealer, interfaces.KeyMetadata{
				KeySpec:     interfaces.KeySpecRSA2048,
				PaddingMode: padding,
				Origin:      interfaces.OriginInternal,
			})
			overhead, ok := RSAPaddingOverhead(padding)
			require.True(t, ok)

			plaintext := bytes.Repeat([]byte{0x5a}, 256-overhead)
			if padding == interfaces.PaddingNone {
				plaintext[0] = 0x00
			}
			ct, err := p.RSAEncrypt(blob, plaintext)
			require.NoError(t, err)
			require.Len(t, ct, 256)

			pt, err := p.RSADecrypt(blob, ct)
			require.NoError(t, err)
			require.Equal(t, plaintext, pt)

			if padding == interfaces.PaddingNone {
				_, err = p.RSAEncrypt(blob, plaintext[1:])
				require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
				_, err = p.RSAEncrypt(blob, []byte{1})
				require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
			}
		})
	}

	_, ok := RSAPaddingOverhead(interfaces.PaddingRSAPKCS1PSS)
	require.False(t, ok)
}

func TestSignVerify(t *testing.T) {
	p, sealer := newTestPrimitives(t)
	data := []byte("message to sign")

	cases := []interfaces.KeyMetadata{
		{KeySpec: interfaces.KeySpecRSA2048, DigestMode: interfaces.DigestSHA256, PaddingMode: interfaces.PaddingRSAPKCS1},
		{KeySpec: interfaces.KeySpecRSA2048, DigestMode: interfaces.DigestSHA384, PaddingMode: interfaces.PaddingRSAPKCS1PSS},
		{KeySpec: interfaces.KeySpecRSA2048, DigestMode: interfaces.DigestSM3, PaddingMode: interfaces.PaddingRSAPKCS1},
		{KeySpec: interfaces.KeySpecECP224, DigestMode: interfaces.DigestSHA224},
		{KeySpec: interfaces.KeySpecECP256, DigestMode: interfaces.DigestNone},
		{KeySpec: interfaces.KeySpecECP384, DigestMode: interfaces.DigestSHA384},
		{KeySpec: interfaces.KeySpecECP521, DigestMode: interfaces.DigestSHA512},
		{KeySpec: interfaces.KeySpecSM2, DigestMode: interfaces.DigestSM3},
	}

	for _, md := range cases {
		md.Origin = interfaces.OriginInternal
		t.Run(md.KeySpec.String()+"/"+md.DigestMode.String(), func(t *testing.T) {
			blob := sealedBlob(t, sealer, md)

			var sign func(interfaces.KeyBlob, []byte) ([]byte, error)
			var verify func(interfaces.KeyBlob, []byte, []byte) (bool, error)
			switch md.KeySpec.Family() {
			case interfaces.FamilyRSA:
				sign, verify = p.RSASign, p.RSAVerify
			case interfaces.FamilyECC:
				sign, verify = p.ECCSign, p.ECCVerify
			case interfaces.FamilySM2:
				sign, verify = p.SM2Sign, p.SM2Verify
			}

			sig, err := sign(blob, data)
			require.NoError(t, err)

			ok, err := verify(blob, data, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = verify(blob, []byte("other message"), sig)
			require.NoError(t, err)
			assert.False(t, ok)

			flipped := bytes.Clone(sig)
			flipped[len(flipped)-1] ^= 0x01
			ok, _ = verify(blob, data, flipped)
			assert.False(t, ok)
		})
	}
}

func TestSM2EncryptDecrypt(t *testing.T) {
	p, sealer := newTestPrimitives(t)
	blob := sealedBlob(t, sealer, interfaces.KeyMetadata{KeySpec: interfaces.KeySpecSM2, Origin: interfaces.OriginInternal})

	plaintext := bytes.Repeat([]byte{0x17}, 255)
	ct, err := p.SM2Encrypt(blob, plaintext)
	require.NoError(t, err)
	require.Len(t, ct, len(plaintext)+SM2Overhead)

	pt, err := p.SM2Decrypt(blob, ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestWrongFamilyRejected(t *testing.T) {
	p, sealer := newTestPrimitives(t)
	blob := sealedBlob(t, sealer, interfaces.KeyMetadata{KeySpec: interfaces.KeySpecECP256, Origin: interfaces.OriginInternal})

	_, err := p.RSASign(blob, []byte("data"))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
	_, err = p.SM2Sign(blob, []byte("data"))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}

func TestDecodeRSARejectsGarbage(t *testing.T) {
	_, err := DecodeRSA(make([]byte, 4+256), 2048)
	require.ErrorIs(t, err, ErrMalformedKey)

	_, err = DecodeRSA(make([]byte, 10), 2048)
	require.ErrorIs(t, err, ErrMalformedKey)
}
