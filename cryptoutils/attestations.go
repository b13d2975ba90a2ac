package cryptoutils

import (
	"bytes"
	"errors"
	"fmt"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
)

var (
	// NativeAttestation quotes wrap a native report body signed by the
	// platform quoting key.
	NativeAttestation = AttestationType{StringID: "native"}

	// DCAPAttestation quotes are TDX v4 quotes produced by the DCAP stack.
	DCAPAttestation = AttestationType{StringID: "qemu-tdx"}
)

type AttestationType struct {
	StringID string
}

func AttestationTypeFromString(str string) (AttestationType, error) {
	switch str {
	case NativeAttestation.StringID:
		return NativeAttestation, nil
	case DCAPAttestation.StringID:
		return DCAPAttestation, nil
	default:
		return AttestationType{}, errors.ErrUnsupported
	}
}

// AttestationProvider produces a quote binding 64 bytes of report data to
// the identity of the running code.
type AttestationProvider interface {
	AttestationType() AttestationType
	Attest(reportData [64]byte) ([]byte, error)
}

func parseTDXQuote(raw []byte) (*tdx_pb.QuoteV4, error) {
	protoQuote, err := tdx_abi.QuoteToProto(raw)
	if err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}

	switch q := protoQuote.(type) {
	case *tdx_pb.QuoteV4:
		if q.GetTdQuoteBody() == nil {
			return nil, errors.New("quote has no td body")
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unsupported quote type: %T", q)
	}
}

// VerifyDCAPAttestation checks the quote signature chain against Intel
// collateral and that the quote carries the expected report data.
func VerifyDCAPAttestation(reportData [64]byte, raw []byte) (*QuoteIdentity, error) {
	v4Quote, err := parseTDXQuote(raw)
	if err != nil {
		return nil, err
	}

	options := verify.DefaultOptions()
	if err := verify.TdxQuote(v4Quote, options); err != nil {
		return nil, fmt.Errorf("quote verification failed: %w", err)
	}

	body := v4Quote.GetTdQuoteBody()
	if !bytes.Equal(body.GetReportData(), reportData[:]) {
		return nil, fmt.Errorf("invalid report data %x, expected %x", body.GetReportData(), reportData[:])
	}

	return tdxIdentity(v4Quote), nil
}

func tdxIdentity(q *tdx_pb.QuoteV4) *QuoteIdentity {
	body := q.GetTdQuoteBody()
	return &QuoteIdentity{
		Type:        DCAPAttestation,
		Measurement: body.GetMrTd(),
		Signer:      body.GetMrOwner(),
		ReportData:  body.GetReportData(),
	}
}
