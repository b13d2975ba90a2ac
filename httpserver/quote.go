package httpserver

import (
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// QuoteHandler serves quotes for a platform.Remote running inside a guest
// without direct access to the quoting interface.
type QuoteHandler struct {
	log      *slog.Logger
	provider cryptoutils.AttestationProvider
}

func NewQuoteHandler(log *slog.Logger, provider cryptoutils.AttestationProvider) *QuoteHandler {
	return &QuoteHandler{log: log, provider: provider}
}

// HandleAttest returns the raw quote over the hex-encoded report data.
//
// Endpoint: GET /attest/{report_data}
func (h *QuoteHandler) HandleAttest(w http.ResponseWriter, r *http.Request) {
	reportDataHex := chi.URLParam(r, "report_data")
	decoded, err := hex.DecodeString(reportDataHex)
	if err != nil || len(decoded) != interfaces.ReportDataSize {
		http.Error(w, "report data must be 64 hex-encoded bytes", http.StatusBadRequest)
		return
	}

	var reportData [interfaces.ReportDataSize]byte
	copy(reportData[:], decoded)

	quote, err := h.provider.Attest(reportData)
	if err != nil {
		h.log.Error("Failed to produce quote", "err", err)
		http.Error(w, "failed to produce quote", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Attestation-Type", h.provider.AttestationType().StringID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(quote)
}

type targetInfoSource interface {
	TargetInfo() (interfaces.TargetInfo, error)
}

// HandleTargetInfo returns the 512-byte target info of the serving
// platform, for providers that can be a report target.
//
// Endpoint: GET /target_info
func (h *QuoteHandler) HandleTargetInfo(w http.ResponseWriter, r *http.Request) {
	source, ok := h.provider.(targetInfoSource)
	if !ok {
		http.Error(w, "provider has no target info", http.StatusNotImplemented)
		return
	}

	ti, err := source.TargetInfo()
	if err != nil {
		h.log.Error("Failed to read target info", "err", err)
		http.Error(w, "failed to read target info", http.StatusInternalServerError)
		return
	}
	raw, err := ti.MarshalBinary()
	if err != nil {
		http.Error(w, "failed to encode target info", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
