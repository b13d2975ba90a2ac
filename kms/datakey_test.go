package kms

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/stretchr/testify/require"
)

// generateDataKey runs the two-phase GenerateDataKey protocol.
func (te *testEnclave) generateDataKey(t *testing.T, cmk interfaces.KeyBlob, aad interfaces.Data, n uint32) (plaintext, wrapped interfaces.Data) {
	t.Helper()
	plaintext = interfaces.NewData(n)
	query := interfaces.NewData(0)
	require.NoError(t, te.GenerateDataKey(cmk, aad, plaintext, query))
	require.Equal(t, make([]byte, n), []byte(plaintext.Payload()), "size query must not produce a key")

	wrapped = interfaces.NewData(query.Len())
	require.NoError(t, te.GenerateDataKey(cmk, aad, plaintext, wrapped))
	return plaintext, wrapped
}

func TestGenerateDataKey(t *testing.T) {
	te := newTestEnclave(t, nil)
	aad := interfaces.DataFrom([]byte("tenant-7"))

	for _, spec := range symmetricSpecs {
		t.Run(spec.String(), func(t *testing.T) {
			cmk := te.createKey(t, internalKey(spec))
			plaintext, wrapped := te.generateDataKey(t, cmk, aad, 32)
			require.NotEqual(t, make([]byte, 32), []byte(plaintext.Payload()))

			recovered, err := te.decrypt(t, cmk, aad, wrapped)
			require.NoError(t, err)
			require.Equal(t, []byte(plaintext.Payload()), recovered)
		})
	}
	te.alloc.requireScrubbed(t, len(symmetricSpecs))
}

func TestGenerateDataKeyBounds(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	cmk := garbageKey(interfaces.KeySpecAESGCM256)

	for _, n := range []uint32{0, DataKeyMaxSize + 1} {
		err := te.GenerateDataKey(cmk, nil, interfaces.NewData(n), interfaces.NewData(0))
		require.ErrorIs(t, err, interfaces.ErrInvalidParameter, "length %d", n)
	}

	query := interfaces.NewData(0)
	require.NoError(t, te.GenerateDataKey(cmk, nil, interfaces.NewData(DataKeyMaxSize), query))
	require.Equal(t, uint32(DataKeyMaxSize+28), query.Len())

	err := te.GenerateDataKey(cmk, nil, interfaces.NewData(16), interfaces.NewData(16+27))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	err = te.GenerateDataKey(garbageKey(interfaces.KeySpecRSA2048), nil, interfaces.NewData(16), interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	require.Zero(t, te.platform.RandCalls())
}

func TestGenerateDataKeyScrubsOnFailure(t *testing.T) {
	te := newTestEnclave(t, nil)
	cmk := te.createKey(t, internalKey(interfaces.KeySpecAESGCM128))

	te.platform.FailRand(errRandUnavailable)
	plaintext := interfaces.NewData(64)
	err := te.GenerateDataKey(cmk, nil, plaintext, interfaces.NewData(64+28))
	requireStatus(t, interfaces.StatusUnexpected, err)
	require.Equal(t, make([]byte, 64), []byte(plaintext.Payload()))
	te.alloc.requireScrubbed(t, 1)
}

func TestGenerateDataKeyOutOfMemory(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	te.alloc.allocErr = errors.New("enomem")

	err := te.GenerateDataKey(garbageKey(interfaces.KeySpecSM4CTR), nil, interfaces.NewData(16), interfaces.NewData(32))
	requireStatus(t, interfaces.StatusOutOfMemory, err)
}

func TestExportDataKey(t *testing.T) {
	te := newTestEnclave(t, nil)
	aad := interfaces.DataFrom([]byte("export"))

	targets := map[string]interfaces.KeyMetadata{
		"rsa-oaep":  rsaKey(interfaces.PaddingRSAPKCS1OAEP, interfaces.DigestSHA256),
		"rsa-pkcs1": rsaKey(interfaces.PaddingRSAPKCS1, interfaces.DigestSHA256),
		"sm2":       internalKey(interfaces.KeySpecSM2),
	}
	ukeys := make(map[string]interfaces.KeyBlob, len(targets))
	for name, md := range targets {
		ukeys[name] = te.createKey(t, md)
	}

	for _, spec := range symmetricSpecs {
		cmk := te.createKey(t, internalKey(spec))
		for name, ukey := range ukeys {
			for _, n := range []uint32{16, 31, 48} {
				t.Run(fmt.Sprintf("%s/%s/%d", spec, name, n), func(t *testing.T) {
					plaintext, wrapped := te.generateDataKey(t, cmk, aad, n)

					query := interfaces.NewData(0)
					require.NoError(t, te.ExportDataKey(cmk, aad, wrapped, ukey, query))

					exported := interfaces.NewData(query.Len())
					require.NoError(t, te.ExportDataKey(cmk, aad, wrapped, ukey, exported))

					recovered := te.asymmetricDecrypt(t, ukey, interfaces.DataFrom(exported.Payload()))
					require.Equal(t, []byte(plaintext.Payload()), recovered)
				})
			}
		}
	}
	te.alloc.requireScrubbed(t, 1)
}

func TestExportDataKeyRejectsRawRSA(t *testing.T) {
	te := newTestEnclave(t, nil)
	cmk := te.createKey(t, internalKey(interfaces.KeySpecAESGCM256))
	ukey := te.createKey(t, rsaKey(interfaces.PaddingNone, interfaces.DigestSHA256))
	_, wrapped := te.generateDataKey(t, cmk, nil, 32)

	query := interfaces.NewData(0)
	err := te.ExportDataKey(cmk, nil, wrapped, ukey, query)
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
	require.Zero(t, query.Len())

	err = te.ExportDataKey(cmk, nil, wrapped, ukey, interfaces.NewData(256))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}

func TestExportDataKeyScrubsOnFailure(t *testing.T) {
	te := newTestEnclave(t, nil)
	cmk := te.createKey(t, internalKey(interfaces.KeySpecAESGCM256))
	ukey := te.createKey(t, internalKey(interfaces.KeySpecSM2))
	_, wrapped := te.generateDataKey(t, cmk, nil, 32)
	te.alloc.scratch = nil

	// Decryption fails on tampered input.
	tampered := interfaces.DataFrom(wrapped.Payload())
	tampered.Payload()[3] ^= 0xff
	err := te.ExportDataKey(cmk, nil, tampered, ukey, interfaces.NewData(32+97))
	requireStatus(t, interfaces.StatusMACMismatch, err)

	// Re-encryption fails after a successful decryption.
	err = te.ExportDataKey(cmk, nil, wrapped, ukey, interfaces.NewData(32+96))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	te.alloc.requireScrubbed(t, 2)
}

func TestExportDataKeyRejectsWrongKeyKinds(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	aes := garbageKey(interfaces.KeySpecAESGCM128)
	rsa := garbageKey(interfaces.KeySpecRSA2048)
	ec := garbageKey(interfaces.KeySpecECP256)

	err := te.ExportDataKey(rsa, nil, interfaces.NewData(256), rsa, interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	err = te.ExportDataKey(aes, nil, interfaces.NewData(60), ec, interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	err = te.ExportDataKey(aes, nil, interfaces.NewData(60), aes, interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	err = te.ExportDataKey(aes, nil, interfaces.NewData(28), rsa, interfaces.NewData(0))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}
