package kms

import (
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// CreateKey generates key material for the keyspec in the blob metadata
// and seals it into the blob. A zero declared length is a size query: the
// required sealed length is written and nothing is generated.
func (e *Enclave) CreateKey(cmk interfaces.KeyBlob) (err error) {
	defer e.track("create_key")(&err)
	return e.createKey(cmk)
}

func (e *Enclave) createKey(cmk interfaces.KeyBlob) error {
	if !cmk.SizeValid() {
		return invalidf("key blob size does not match declared length")
	}
	md := cmk.Metadata()
	if md.Origin != interfaces.OriginInternal {
		return invalidf("key origin %s is not allowed", md.Origin)
	}

	switch md.KeySpec.Family() {
	case interfaces.FamilyAESGCM, interfaces.FamilyRSA, interfaces.FamilyECC,
		interfaces.FamilySM2, interfaces.FamilySM4CTR, interfaces.FamilySM4CBC:
	default:
		return invalidf("unsupported keyspec %s", md.KeySpec)
	}

	required := SealedKeySize(md.KeySpec)
	if cmk.DeclaredLen() == 0 {
		cmk.SetDeclaredLen(required)
		return nil
	}
	if cmk.DeclaredLen() != required {
		return invalidf("keyspec %s needs %d sealed bytes, got %d", md.KeySpec, required, cmk.DeclaredLen())
	}

	material, err := cryptoutils.GenerateKeyMaterial(md.KeySpec, e.random)
	if err != nil {
		return err
	}
	defer cryptoutils.Wipe(material)

	sealed, err := e.sealer.Seal(cmk.MetadataBytes(), material)
	if err != nil {
		return err
	}
	copy(cmk.Sealed(), sealed)
	return nil
}
