package interfaces

import "fmt"

// KeySpec identifies an algorithm and key size combination. It is fixed
// when a key is created.
type KeySpec uint32

const (
	KeySpecInvalid KeySpec = iota
	KeySpecAESGCM128
	KeySpecAESGCM192
	KeySpecAESGCM256
	KeySpecRSA2048
	KeySpecRSA3072
	KeySpecRSA4096
	KeySpecECP224
	KeySpecECP256
	KeySpecECP384
	KeySpecECP521
	KeySpecSM2
	KeySpecSM4CTR
	KeySpecSM4CBC
)

var keySpecNames = map[KeySpec]string{
	KeySpecAESGCM128: "EH_AES_GCM_128",
	KeySpecAESGCM192: "EH_AES_GCM_192",
	KeySpecAESGCM256: "EH_AES_GCM_256",
	KeySpecRSA2048:   "EH_RSA_2048",
	KeySpecRSA3072:   "EH_RSA_3072",
	KeySpecRSA4096:   "EH_RSA_4096",
	KeySpecECP224:    "EH_EC_P224",
	KeySpecECP256:    "EH_EC_P256",
	KeySpecECP384:    "EH_EC_P384",
	KeySpecECP521:    "EH_EC_P521",
	KeySpecSM2:       "EH_SM2",
	KeySpecSM4CTR:    "EH_SM4_CTR",
	KeySpecSM4CBC:    "EH_SM4_CBC",
}

func (s KeySpec) String() string {
	if name, ok := keySpecNames[s]; ok {
		return name
	}
	return fmt.Sprintf("KeySpec(%d)", uint32(s))
}

// ParseKeySpec accepts the canonical EH_* names.
func ParseKeySpec(name string) (KeySpec, error) {
	for spec, n := range keySpecNames {
		if n == name {
			return spec, nil
		}
	}
	return KeySpecInvalid, fmt.Errorf("unknown keyspec %q: %w", name, ErrInvalidParameter)
}

// KeySpecs lists every supported keyspec.
func KeySpecs() []KeySpec {
	return []KeySpec{
		KeySpecAESGCM128, KeySpecAESGCM192, KeySpecAESGCM256,
		KeySpecRSA2048, KeySpecRSA3072, KeySpecRSA4096,
		KeySpecECP224, KeySpecECP256, KeySpecECP384, KeySpecECP521,
		KeySpecSM2, KeySpecSM4CTR, KeySpecSM4CBC,
	}
}

// Family is the primitive family a keyspec is routed to.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyAESGCM
	FamilyRSA
	FamilyECC
	FamilySM2
	FamilySM4CTR
	FamilySM4CBC
)

func (f Family) String() string {
	switch f {
	case FamilyAESGCM:
		return "aes-gcm"
	case FamilyRSA:
		return "rsa"
	case FamilyECC:
		return "ecc"
	case FamilySM2:
		return "sm2"
	case FamilySM4CTR:
		return "sm4-ctr"
	case FamilySM4CBC:
		return "sm4-cbc"
	default:
		return "unknown"
	}
}

// Family resolves the keyspec to its primitive family.
func (s KeySpec) Family() Family {
	switch s {
	case KeySpecAESGCM128, KeySpecAESGCM192, KeySpecAESGCM256:
		return FamilyAESGCM
	case KeySpecRSA2048, KeySpecRSA3072, KeySpecRSA4096:
		return FamilyRSA
	case KeySpecECP224, KeySpecECP256, KeySpecECP384, KeySpecECP521:
		return FamilyECC
	case KeySpecSM2:
		return FamilySM2
	case KeySpecSM4CTR:
		return FamilySM4CTR
	case KeySpecSM4CBC:
		return FamilySM4CBC
	default:
		return FamilyUnknown
	}
}

// IsSymmetric reports whether the keyspec belongs to a symmetric family.
func (s KeySpec) IsSymmetric() bool {
	switch s.Family() {
	case FamilyAESGCM, FamilySM4CTR, FamilySM4CBC:
		return true
	}
	return false
}

// SymmetricKeySize is the raw key length in bytes, or 0 for asymmetric keyspecs.
func (s KeySpec) SymmetricKeySize() int {
	switch s {
	case KeySpecAESGCM128, KeySpecSM4CTR, KeySpecSM4CBC:
		return 16
	case KeySpecAESGCM192:
		return 24
	case KeySpecAESGCM256:
		return 32
	default:
		return 0
	}
}

// RSABits is the modulus size in bits, or 0 for non-RSA keyspecs.
func (s KeySpec) RSABits() int {
	switch s {
	case KeySpecRSA2048:
		return 2048
	case KeySpecRSA3072:
		return 3072
	case KeySpecRSA4096:
		return 4096
	default:
		return 0
	}
}

// PaddingMode selects the RSA padding scheme for encryption and signing.
type PaddingMode uint32

const (
	PaddingNone PaddingMode = iota
	PaddingRSAPKCS1
	PaddingRSAPKCS1OAEP
	PaddingRSAPKCS1PSS
)

func (p PaddingMode) String() string {
	switch p {
	case PaddingNone:
		return "EH_PAD_RSA_NO"
	case PaddingRSAPKCS1:
		return "EH_PAD_RSA_PKCS1"
	case PaddingRSAPKCS1OAEP:
		return "EH_PAD_RSA_PKCS1_OAEP"
	case PaddingRSAPKCS1PSS:
		return "EH_PAD_RSA_PKCS1_PSS"
	default:
		return fmt.Sprintf("PaddingMode(%d)", uint32(p))
	}
}

// DigestMode selects the message digest used when signing.
type DigestMode uint32

const (
	DigestNone DigestMode = iota
	DigestSHA224
	DigestSHA256
	DigestSHA384
	DigestSHA512
	DigestSM3
)

func (d DigestMode) String() string {
	switch d {
	case DigestNone:
		return "EH_DIGEST_NONE"
	case DigestSHA224:
		return "EH_SHA_224"
	case DigestSHA256:
		return "EH_SHA_256"
	case DigestSHA384:
		return "EH_SHA_384"
	case DigestSHA512:
		return "EH_SHA_512"
	case DigestSM3:
		return "EH_SM3"
	default:
		return fmt.Sprintf("DigestMode(%d)", uint32(d))
	}
}

// Origin records where key material came from.
type Origin uint32

const (
	OriginUnknown Origin = iota
	// OriginInternal marks key material generated inside the enclave.
	OriginInternal
	// OriginExternal marks key material imported from outside.
	OriginExternal
)

func (o Origin) String() string {
	switch o {
	case OriginInternal:
		return "EH_INTERNAL_KEY"
	case OriginExternal:
		return "EH_EXTERNAL_KEY"
	default:
		return "EH_ORIGIN_UNKNOWN"
	}
}

// KeyPurpose is informational; operations are gated by keyspec and origin.
type KeyPurpose uint32

const (
	PurposeNone KeyPurpose = iota
	PurposeEncryptDecrypt
	PurposeSignVerify
)

// KeyMetadata is carried in the header of every key blob.
type KeyMetadata struct {
	KeySpec     KeySpec
	DigestMode  DigestMode
	PaddingMode PaddingMode
	Origin      Origin
	Purpose     KeyPurpose
}

// ParsePaddingMode accepts the names printed by PaddingMode.String.
func ParsePaddingMode(name string) (PaddingMode, error) {
	for p := PaddingNone; p <= PaddingRSAPKCS1PSS; p++ {
		if p.String() == name {
			return p, nil
		}
	}
	return PaddingNone, fmt.Errorf("unknown padding mode %q: %w", name, ErrInvalidParameter)
}

// ParseDigestMode accepts the names printed by DigestMode.String.
func ParseDigestMode(name string) (DigestMode, error) {
	for d := DigestNone; d <= DigestSM3; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return DigestNone, fmt.Errorf("unknown digest mode %q: %w", name, ErrInvalidParameter)
}
