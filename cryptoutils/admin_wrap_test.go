package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdminWrap(t *testing.T) {
	pub, priv, err := RandomP256Keypair()
	require.NoError(t, err)

	share := []byte("shamir share bytes")
	wrapped, err := WrapForAdmin(pub, share)
	require.NoError(t, err)
	require.Len(t, wrapped, p256PointSize+len(share)+AESGCMOverhead)

	unwrapped, err := UnwrapWithAdminKey(priv, wrapped)
	require.NoError(t, err)
	require.Equal(t, share, unwrapped)

	_, otherPriv, err := RandomP256Keypair()
	require.NoError(t, err)
	_, err = UnwrapWithAdminKey(otherPriv, wrapped)
	require.ErrorIs(t, err, ErrDecrypt)

	wrapped[len(wrapped)-1] ^= 1
	_, err = UnwrapWithAdminKey(priv, wrapped)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = UnwrapWithAdminKey(priv, wrapped[:p256PointSize])
	require.Error(t, err)

	_, err = WrapForAdmin(Pubkey("not a key"), share)
	require.Error(t, err)
}
