package platform

import (
	"fmt"
	"io"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// Kind selects where quotes come from.
type Kind string

const (
	KindSoftware Kind = "software"
	KindTDX      Kind = "tdx"
	KindRemote   Kind = "remote"
)

// Attester is a platform that can also quote its reports.
type Attester interface {
	interfaces.Platform
	cryptoutils.AttestationProvider
}

var (
	_ Attester = (*Software)(nil)
	_ Attester = (*TDX)(nil)
	_ Attester = (*Remote)(nil)
)

type Config struct {
	Kind     Kind
	Root     []byte
	Identity Identity
	// QuoteProvider is the base URL of the quote service, used by KindRemote.
	QuoteProvider string
	// RemoteType is the attestation type the quote service produces.
	RemoteType cryptoutils.AttestationType
	Random     io.Reader
}

// New builds the platform described by cfg. The caller owns cfg.Root and
// should erase it once New returns.
func New(cfg Config) (Attester, error) {
	software, err := NewSoftware(cfg.Root, cfg.Identity, cfg.Random)
	if err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindSoftware, "":
		return software, nil
	case KindTDX:
		return NewTDX(software), nil
	case KindRemote:
		if cfg.QuoteProvider == "" {
			software.Destroy()
			return nil, fmt.Errorf("platform %q requires a quote provider address", cfg.Kind)
		}
		typ := cfg.RemoteType
		if typ.StringID == "" {
			typ = cryptoutils.DCAPAttestation
		}
		return NewRemote(software, cfg.QuoteProvider, typ), nil
	default:
		software.Destroy()
		return nil, fmt.Errorf("unknown platform kind %q", cfg.Kind)
	}
}
