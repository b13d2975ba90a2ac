package platform

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"golang.org/x/crypto/argon2"
)

var (
	ErrLocked          = errors.New("platform: root secret is locked, more shares needed")
	ErrAlreadyUnlocked = errors.New("platform: root secret is already unlocked")
	ErrUnknownAdmin    = errors.New("platform: unregistered admin public key")
	ErrShareSignature  = errors.New("platform: invalid share signature")
)

// ShamirConfig contains the share distribution parameters.
type ShamirConfig struct {
	// Threshold is the minimum number of shares required to rebuild the root.
	Threshold int
	// AdminPubKeys are the PEM keys of the administrators holding shares.
	// Share i belongs to AdminPubKeys[i].
	AdminPubKeys [][]byte
}

// ShamirRoot guards the software platform root secret with Shamir's
// secret sharing. The root is never persisted: it is split once at setup
// and rebuilt in memory from shares signed by registered administrators.
type ShamirRoot struct {
	mu        sync.RWMutex
	root      []byte
	unlocked  bool
	threshold int

	// keyed by admin fingerprint so one admin cannot submit twice
	receivedShares map[string][]byte
	adminPubKeys   map[string][]byte
}

func newShamirRoot(config ShamirConfig) (*ShamirRoot, error) {
	if config.Threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if len(config.AdminPubKeys) < config.Threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	k := &ShamirRoot{
		threshold:      config.Threshold,
		receivedShares: make(map[string][]byte),
		adminPubKeys:   make(map[string][]byte),
	}
	for _, publicKeyPEM := range config.AdminPubKeys {
		if err := cryptoutils.Pubkey(publicKeyPEM).Validate(); err != nil {
			return nil, fmt.Errorf("invalid admin pubkey %s: %w", publicKeyPEM, err)
		}
		k.adminPubKeys[fingerprint(publicKeyPEM)] = publicKeyPEM
	}
	if len(k.adminPubKeys) != len(config.AdminPubKeys) {
		return nil, errors.New("admin public keys must be distinct")
	}
	return k, nil
}

// NewShamirRoot splits root into one share per administrator. The
// returned ShamirRoot is unlocked; the shares must be handed out and the
// caller's copy of root erased.
func NewShamirRoot(root []byte, config ShamirConfig) (*ShamirRoot, [][]byte, error) {
	if len(root) < RootSecretSize {
		return nil, nil, ErrRootTooShort
	}
	k, err := newShamirRoot(config)
	if err != nil {
		return nil, nil, err
	}

	shares, err := shamir.Split(root, len(config.AdminPubKeys), config.Threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split root secret: %w", err)
	}

	k.root = bytes.Clone(root)
	k.unlocked = true
	return k, shares, nil
}

// NewShamirRootRecovery starts locked and waits for SubmitShare.
func NewShamirRootRecovery(config ShamirConfig) (*ShamirRoot, error) {
	return newShamirRoot(config)
}

// SubmitShare accepts a share signed by a registered administrator. Once
// the threshold is reached the root is rebuilt and the shares are wiped.
func (k *ShamirRoot) SubmitShare(share, signature, adminPubKeyPEM []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.unlocked {
		return ErrAlreadyUnlocked
	}

	fp := fingerprint(adminPubKeyPEM)
	registered, found := k.adminPubKeys[fp]
	if !found || !bytes.Equal(registered, adminPubKeyPEM) {
		return ErrUnknownAdmin
	}

	pubKey, err := cryptoutils.Pubkey(adminPubKeyPEM).ECDSA()
	if err != nil {
		return fmt.Errorf("failed to parse admin public key: %w", err)
	}
	digest := sha256.Sum256(share)
	if !ecdsa.VerifyASN1(pubKey, digest[:], signature) {
		return ErrShareSignature
	}

	k.receivedShares[fp] = bytes.Clone(share)
	return k.tryReconstruct()
}

func (k *ShamirRoot) tryReconstruct() error {
	if len(k.receivedShares) < k.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(k.receivedShares))
	for _, share := range k.receivedShares {
		shares = append(shares, share)
	}

	root, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct root secret: %w", err)
	}

	k.root = root
	k.unlocked = true

	for fp, share := range k.receivedShares {
		cryptoutils.Wipe(share)
		delete(k.receivedShares, fp)
	}
	return nil
}

func (k *ShamirRoot) IsUnlocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.unlocked
}

// Software creates a software platform on the unlocked root.
func (k *ShamirRoot) Software(identity Identity, random io.Reader) (*Software, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.unlocked {
		return nil, ErrLocked
	}
	return NewSoftware(k.root, identity, random)
}

// Platform builds the platform described by cfg on the unlocked root.
// cfg.Root is ignored.
func (k *ShamirRoot) Platform(cfg Config) (Attester, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.unlocked {
		return nil, ErrLocked
	}
	cfg.Root = k.root
	return New(cfg)
}

// Wipe erases the root and locks again.
func (k *ShamirRoot) Wipe() {
	k.mu.Lock()
	defer k.mu.Unlock()
	cryptoutils.Wipe(k.root)
	k.root = nil
	k.unlocked = false
}

func fingerprint(publicKeyPEM []byte) string {
	sum := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(sum[:])
}

// SignShare is used by an administrator to authorize submitting a share.
func SignShare(share []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(share)
	return ecdsa.SignASN1(rand.Reader, privateKey, digest[:])
}

// RootFromPassphrase stretches an operator passphrase into a root secret
// with Argon2id. The salt must be stored with the deployment.
func RootFromPassphrase(passphrase, salt []byte) []byte {
	// time=1, memory=64MiB, threads=4
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, RootSecretSize)
}
