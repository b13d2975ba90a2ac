package platform

import (
	tdx_client "github.com/google/go-tdx-guest/client"
	"github.com/ruteri/tee-kms-core/cryptoutils"
)

// TDX keeps the software key hierarchy and replaces native quotes with
// hardware TDX quotes from the guest quote interface.
type TDX struct {
	*Software
}

func NewTDX(software *Software) *TDX {
	return &TDX{Software: software}
}

func (*TDX) AttestationType() cryptoutils.AttestationType {
	return cryptoutils.DCAPAttestation
}

// Attest prefers the configfs-tsm report interface and falls back to the
// legacy TDX guest device.
func (*TDX) Attest(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}
