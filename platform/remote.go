package platform

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ruteri/tee-kms-core/cryptoutils"
)

// maxQuoteSize bounds the response read from a remote quote provider.
const maxQuoteSize = 64 * 1024

// Remote keeps the software key hierarchy and obtains quotes from a quote
// service (see httpserver) running next to the hardware.
type Remote struct {
	*Software

	Address string
	Type    cryptoutils.AttestationType
	Client  *http.Client
}

func NewRemote(software *Software, address string, typ cryptoutils.AttestationType) *Remote {
	return &Remote{
		Software: software,
		Address:  address,
		Type:     typ,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Remote) AttestationType() cryptoutils.AttestationType { return r.Type }

func (r *Remote) Attest(reportData [64]byte) ([]byte, error) {
	extraDataHex := hex.EncodeToString(reportData[:])

	url := fmt.Sprintf("%s/attest/%s", r.Address, extraDataHex)
	resp, err := r.Client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(io.LimitReader(resp.Body, maxQuoteSize))
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}
