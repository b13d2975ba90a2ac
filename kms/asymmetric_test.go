package kms

import (
	"crypto/rand"
	"testing"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/stretchr/testify/require"
)

func rsaKey(padding interfaces.PaddingMode, digest interfaces.DigestMode) interfaces.KeyMetadata {
	return interfaces.KeyMetadata{
		KeySpec:     interfaces.KeySpecRSA2048,
		DigestMode:  digest,
		PaddingMode: padding,
		Origin:      interfaces.OriginInternal,
		Purpose:     interfaces.PurposeEncryptDecrypt,
	}
}

// asymmetricEncrypt runs the two-phase AsymmetricEncrypt protocol.
func (te *testEnclave) asymmetricEncrypt(t *testing.T, cmk interfaces.KeyBlob, plaintext []byte) interfaces.Data {
	t.Helper()
	pt := interfaces.DataFrom(plaintext)
	query := interfaces.NewData(0)
	require.NoError(t, te.AsymmetricEncrypt(cmk, pt, query))

	ct := interfaces.NewData(query.Len())
	require.NoError(t, te.AsymmetricEncrypt(cmk, pt, ct))
	return ct
}

func (te *testEnclave) asymmetricDecrypt(t *testing.T, cmk interfaces.KeyBlob, ct interfaces.Data) []byte {
	t.Helper()
	query := interfaces.NewData(0)
	require.NoError(t, te.AsymmetricDecrypt(cmk, ct, query))

	pt := interfaces.NewData(query.Len())
	require.NoError(t, te.AsymmetricDecrypt(cmk, ct, pt))
	return pt.Payload()
}

func (te *testEnclave) sign(t *testing.T, cmk interfaces.KeyBlob, data []byte) interfaces.Data {
	t.Helper()
	query := interfaces.NewData(0)
	require.NoError(t, te.Sign(cmk, interfaces.DataFrom(data), query))
	expected, ok := SignatureSize(cmk.Metadata().KeySpec)
	require.True(t, ok)
	require.Equal(t, expected, query.Len())

	sig := interfaces.NewData(query.Len())
	require.NoError(t, te.Sign(cmk, interfaces.DataFrom(data), sig))
	require.LessOrEqual(t, sig.Len(), expected)
	return interfaces.DataFrom(sig.Payload())
}

func TestRSAPaddingBoundaries(t *testing.T) {
	te := newTestEnclave(t, nil)

	cases := []struct {
		padding interfaces.PaddingMode
		max     int
	}{
		{interfaces.PaddingRSAPKCS1OAEP, 214},
		{interfaces.PaddingRSAPKCS1, 245},
		{interfaces.PaddingNone, 256},
	}
	for _, tc := range cases {
		t.Run(tc.padding.String(), func(t *testing.T) {
			cmk := te.createKey(t, rsaKey(tc.padding, interfaces.DigestSHA256))
			require.Equal(t, uint32(tc.max), MaxAsymmetricPlaintext(interfaces.KeySpecRSA2048, tc.padding))

			plaintext := make([]byte, tc.max)
			_, _ = rand.Read(plaintext)
			// Raw RSA input must be below the modulus.
			plaintext[0] = 0

			ct := te.asymmetricEncrypt(t, cmk, plaintext)
			require.Equal(t, uint32(256), ct.Len())
			require.Equal(t, plaintext, te.asymmetricDecrypt(t, cmk, ct))

			err := te.AsymmetricEncrypt(cmk, interfaces.DataFrom(make([]byte, tc.max+1)), interfaces.NewData(0))
			require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

			err = te.AsymmetricDecrypt(cmk, interfaces.DataFrom(ct.Payload()[:255]), interfaces.NewData(0))
			require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
		})
	}
}

func TestRawRSARequiresFullBlock(t *testing.T) {
	te := newTestEnclave(t, nil)
	cmk := te.createKey(t, rsaKey(interfaces.PaddingNone, interfaces.DigestSHA256))

	for _, n := range []int{1, 32, 255} {
		for _, out := range []interfaces.Data{interfaces.NewData(0), interfaces.NewData(256)} {
			err := te.AsymmetricEncrypt(cmk, interfaces.DataFrom(make([]byte, n)), out)
			require.ErrorIs(t, err, interfaces.ErrInvalidParameter, "plaintext length %d", n)
		}
	}
}

func TestRSAShortPlaintextRoundTrip(t *testing.T) {
	te := newTestEnclave(t, nil)
	cmk := te.createKey(t, rsaKey(interfaces.PaddingRSAPKCS1OAEP, interfaces.DigestSHA256))

	ct := te.asymmetricEncrypt(t, cmk, []byte("data key"))
	require.Equal(t, []byte("data key"), te.asymmetricDecrypt(t, cmk, ct))

	query := interfaces.NewData(0)
	require.NoError(t, te.AsymmetricDecrypt(cmk, ct, query))
	require.Equal(t, uint32(214), query.Len())
}

func TestPSSCannotEncrypt(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	cmk := interfaces.NewKeyBlob(rsaKey(interfaces.PaddingRSAPKCS1PSS, interfaces.DigestSHA256), 64)

	err := te.AsymmetricEncrypt(cmk, interfaces.DataFrom([]byte("x")), interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
	err = te.AsymmetricDecrypt(cmk, interfaces.NewData(256), interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}

func TestSM2EncryptDecrypt(t *testing.T) {
	te := newTestEnclave(t, nil)
	cmk := te.createKey(t, internalKey(interfaces.KeySpecSM2))

	for _, n := range []int{1, 32, SM2MaxPlaintext} {
		plaintext := make([]byte, n)
		_, _ = rand.Read(plaintext)

		ct := te.asymmetricEncrypt(t, cmk, plaintext)
		require.Equal(t, uint32(n+97), ct.Len())
		require.Equal(t, plaintext, te.asymmetricDecrypt(t, cmk, ct))
	}

	err := te.AsymmetricEncrypt(cmk, interfaces.DataFrom(make([]byte, SM2MaxPlaintext+1)), interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	err = te.AsymmetricDecrypt(cmk, interfaces.NewData(97), interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}

func TestSignVerify(t *testing.T) {
	te := newTestEnclave(t, nil)

	keys := map[string]interfaces.KeyMetadata{
		"rsa-pkcs1":   rsaKey(interfaces.PaddingRSAPKCS1, interfaces.DigestSHA256),
		"rsa-pss":     rsaKey(interfaces.PaddingRSAPKCS1PSS, interfaces.DigestSHA384),
		"rsa-sm3":     rsaKey(interfaces.PaddingRSAPKCS1, interfaces.DigestSM3),
		"ec-p224":     internalKey(interfaces.KeySpecECP224),
		"ec-p256":     internalKey(interfaces.KeySpecECP256),
		"ec-p384":     internalKey(interfaces.KeySpecECP384),
		"ec-p521":     internalKey(interfaces.KeySpecECP521),
		"ec-p256-sm3": {KeySpec: interfaces.KeySpecECP256, DigestMode: interfaces.DigestSM3, Origin: interfaces.OriginInternal},
		"sm2":         internalKey(interfaces.KeySpecSM2),
	}

	data := []byte("the quick brown fox")
	for name, md := range keys {
		t.Run(name, func(t *testing.T) {
			cmk := te.createKey(t, md)
			sig := te.sign(t, cmk, data)

			valid, err := te.Verify(cmk, interfaces.DataFrom(data), sig)
			require.NoError(t, err)
			require.True(t, valid)

			valid, err = te.Verify(cmk, interfaces.DataFrom([]byte("the quick brown fix")), sig)
			require.NoError(t, err)
			require.False(t, valid)

			for _, i := range []int{0, int(sig.Len()) / 2, int(sig.Len()) - 1} {
				flipped := interfaces.DataFrom(sig.Payload())
				flipped.Payload()[i] ^= 0x01
				valid, err := te.Verify(cmk, interfaces.DataFrom(data), flipped)
				require.False(t, err == nil && valid, "flipped byte %d still verifies", i)
			}
		})
	}
}

func TestSignatureLengthChecks(t *testing.T) {
	te := newTestEnclave(t, nil)

	rsa := te.createKey(t, rsaKey(interfaces.PaddingRSAPKCS1, interfaces.DigestSHA256))
	err := te.Sign(rsa, interfaces.DataFrom([]byte("x")), interfaces.NewData(255))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	sig := te.sign(t, rsa, []byte("x"))
	_, err = te.Verify(rsa, interfaces.DataFrom([]byte("x")), interfaces.DataFrom(sig.Payload()[:255]))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	// Only RSA signatures have a fixed length.
	ec := te.createKey(t, internalKey(interfaces.KeySpecECP256))
	ecSig := te.sign(t, ec, []byte("x"))
	valid, err := te.Verify(ec, interfaces.DataFrom([]byte("x")), interfaces.DataFrom(ecSig.Payload()[:ecSig.Len()-1]))
	require.NoError(t, err)
	require.False(t, valid)

	_, err = te.Verify(ec, interfaces.DataFrom([]byte("x")), interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	err = te.Sign(ec, interfaces.NewData(0), interfaces.NewData(72))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	// PSS needs a standard digest.
	pss := te.createKey(t, rsaKey(interfaces.PaddingRSAPKCS1PSS, interfaces.DigestSM3))
	err = te.Sign(pss, interfaces.DataFrom([]byte("x")), interfaces.NewData(256))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}
