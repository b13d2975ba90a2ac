package platform

import (
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type admin struct {
	key *ecdsa.PrivateKey
	pem []byte
}

func newAdmins(t *testing.T, n int) ([]admin, [][]byte) {
	t.Helper()
	admins := make([]admin, n)
	pems := make([][]byte, n)
	for i := range admins {
		pub, priv, err := cryptoutils.RandomP256Keypair()
		require.NoError(t, err)
		key, err := priv.ECDSA()
		require.NoError(t, err)
		admins[i] = admin{key: key, pem: pub}
		pems[i] = pub
	}
	return admins, pems
}

func randomRoot(t *testing.T) []byte {
	t.Helper()
	root := make([]byte, RootSecretSize)
	_, err := rand.Read(root)
	require.NoError(t, err)
	return root
}

func submit(t *testing.T, k *ShamirRoot, a admin, share []byte) error {
	t.Helper()
	sig, err := SignShare(share, a.key)
	require.NoError(t, err)
	return k.SubmitShare(share, sig, a.pem)
}

func TestNewShamirRoot(t *testing.T) {
	_, pems := newAdmins(t, 5)
	root := randomRoot(t)

	k, shares, err := NewShamirRoot(root, ShamirConfig{Threshold: 3, AdminPubKeys: pems})
	require.NoError(t, err)
	assert.Len(t, shares, 5)
	assert.True(t, k.IsUnlocked())

	_, _, err = NewShamirRoot(root, ShamirConfig{Threshold: 6, AdminPubKeys: pems})
	assert.Error(t, err, "threshold above share count")

	_, _, err = NewShamirRoot(root, ShamirConfig{Threshold: 1, AdminPubKeys: pems})
	assert.Error(t, err, "threshold below 2")

	_, _, err = NewShamirRoot(root[:16], ShamirConfig{Threshold: 3, AdminPubKeys: pems})
	assert.ErrorIs(t, err, ErrRootTooShort)

	_, _, err = NewShamirRoot(root, ShamirConfig{Threshold: 2, AdminPubKeys: [][]byte{pems[0], pems[0]}})
	assert.Error(t, err, "duplicate admin keys")

	_, _, err = NewShamirRoot(root, ShamirConfig{Threshold: 2, AdminPubKeys: [][]byte{pems[0], []byte("not-a-valid-pem")}})
	assert.Error(t, err, "invalid admin key")
}

func TestShamirRootRecovery(t *testing.T) {
	admins, pems := newAdmins(t, 5)
	root := randomRoot(t)
	cfg := ShamirConfig{Threshold: 3, AdminPubKeys: pems}

	original, shares, err := NewShamirRoot(root, cfg)
	require.NoError(t, err)
	expected, err := original.Software(testIdentity(), nil)
	require.NoError(t, err)
	defer expected.Destroy()

	recovery, err := NewShamirRootRecovery(cfg)
	require.NoError(t, err)
	require.False(t, recovery.IsUnlocked())

	_, err = recovery.Software(testIdentity(), nil)
	require.ErrorIs(t, err, ErrLocked)

	// any subset of threshold size works
	for i, idx := range []int{4, 1, 2} {
		require.NoError(t, submit(t, recovery, admins[idx], shares[idx]))
		require.Equal(t, i == 2, recovery.IsUnlocked())
	}

	recovered, err := recovery.Software(testIdentity(), nil)
	require.NoError(t, err)
	defer recovered.Destroy()

	want, err := expected.SealingKey()
	require.NoError(t, err)
	got, err := recovered.SealingKey()
	require.NoError(t, err)
	require.Equal(t, want, got)

	require.ErrorIs(t, submit(t, recovery, admins[0], shares[0]), ErrAlreadyUnlocked)
}

func TestSubmitShareValidation(t *testing.T) {
	admins, pems := newAdmins(t, 3)
	outsiders, _ := newAdmins(t, 1)
	cfg := ShamirConfig{Threshold: 2, AdminPubKeys: pems}

	_, shares, err := NewShamirRoot(randomRoot(t), cfg)
	require.NoError(t, err)

	recovery, err := NewShamirRootRecovery(cfg)
	require.NoError(t, err)

	require.ErrorIs(t, submit(t, recovery, outsiders[0], shares[0]), ErrUnknownAdmin)

	// signed by another admin
	sig, err := SignShare(shares[0], admins[1].key)
	require.NoError(t, err)
	require.ErrorIs(t, recovery.SubmitShare(shares[0], sig, admins[0].pem), ErrShareSignature)

	// signature over a different share
	sig, err = SignShare(shares[1], admins[0].key)
	require.NoError(t, err)
	require.ErrorIs(t, recovery.SubmitShare(shares[0], sig, admins[0].pem), ErrShareSignature)

	// resubmission by the same admin does not count twice
	require.NoError(t, submit(t, recovery, admins[0], shares[0]))
	require.NoError(t, submit(t, recovery, admins[0], shares[0]))
	require.False(t, recovery.IsUnlocked())

	require.NoError(t, submit(t, recovery, admins[2], shares[2]))
	require.True(t, recovery.IsUnlocked())
}

func TestShamirRootPlatform(t *testing.T) {
	_, pems := newAdmins(t, 2)
	root := randomRoot(t)
	k, _, err := NewShamirRoot(root, ShamirConfig{Threshold: 2, AdminPubKeys: pems})
	require.NoError(t, err)

	p, err := k.Platform(Config{Kind: KindTDX, Identity: testIdentity(), Root: []byte("ignored")})
	require.NoError(t, err)
	require.IsType(t, &TDX{}, p)

	direct := newSoftware(t, root, testIdentity())
	want, err := direct.SealingKey()
	require.NoError(t, err)
	got, err := p.SealingKey()
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = k.Platform(Config{Kind: "sgx"})
	require.Error(t, err)
}

func TestShamirRootWipe(t *testing.T) {
	_, pems := newAdmins(t, 2)
	k, _, err := NewShamirRoot(randomRoot(t), ShamirConfig{Threshold: 2, AdminPubKeys: pems})
	require.NoError(t, err)

	k.Wipe()
	require.False(t, k.IsUnlocked())
	_, err = k.Software(testIdentity(), nil)
	require.ErrorIs(t, err, ErrLocked)
	_, err = k.Platform(Config{})
	require.ErrorIs(t, err, ErrLocked)
}

func TestRootFromPassphrase(t *testing.T) {
	salt := []byte("deployment salt")
	a := RootFromPassphrase([]byte("correct horse"), salt)
	require.Len(t, a, RootSecretSize)
	require.Equal(t, a, RootFromPassphrase([]byte("correct horse"), salt))
	require.NotEqual(t, a, RootFromPassphrase([]byte("correct horse"), []byte("other salt")))
	require.NotEqual(t, a, RootFromPassphrase([]byte("battery staple"), salt))
}
