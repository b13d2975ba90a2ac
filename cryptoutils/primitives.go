package cryptoutils

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ruteri/tee-kms-core/interfaces"
)

// Primitives is the default implementation of interfaces.KeyOperations.
// Every call unseals the key blob with the platform sealer, runs the
// primitive and wipes the unsealed material before returning.
type Primitives struct {
	sealer *Sealer
	random io.Reader
}

var _ interfaces.KeyOperations = (*Primitives)(nil)

// NewPrimitives creates the primitive dispatch table. A nil random falls
// back to crypto/rand.
func NewPrimitives(sealer *Sealer, random io.Reader) *Primitives {
	if random == nil {
		random = rand.Reader
	}
	return &Primitives{sealer: sealer, random: random}
}

// withKey unseals cmk, hands the raw material to fn and wipes it afterwards.
func (p *Primitives) withKey(cmk interfaces.KeyBlob, fn func(material []byte) error) error {
	if !cmk.SizeValid() {
		return fmt.Errorf("malformed key blob: %w", interfaces.ErrInvalidParameter)
	}
	material, err := p.sealer.Open(cmk.MetadataBytes(), cmk.Sealed())
	if err != nil {
		return err
	}
	defer Wipe(material)
	return fn(material)
}

func (p *Primitives) readIV(n int) ([]byte, error) {
	iv := make([]byte, n)
	if _, err := io.ReadFull(p.random, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return iv, nil
}
