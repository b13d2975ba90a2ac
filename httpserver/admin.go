package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/platform"
)

// BootstrapState tracks how far the root secret bootstrap has progressed.
type BootstrapState int

const (
	// StateInitial: no admin has started a bootstrap yet.
	StateInitial BootstrapState = iota
	// StateGeneratingShares: a fresh root exists and its shares wait to be fetched.
	StateGeneratingShares
	// StateRecovering: shares are being collected to rebuild an existing root.
	StateRecovering
	// StateComplete: the root is unlocked.
	StateComplete
)

var bootstrapStateNames = [...]string{
	StateInitial:          "initial",
	StateGeneratingShares: "generating_shares",
	StateRecovering:       "recovering",
	StateComplete:         "complete",
}

func (s BootstrapState) String() string {
	if s < 0 || int(s) >= len(bootstrapStateNames) {
		return "unknown"
	}
	return bootstrapStateNames[s]
}

// SecureShare is a share wrapped to the administrator it is assigned to.
type SecureShare struct {
	AdminID        string
	ShareIndex     int
	EncryptedShare []byte
	Retrieved      bool
}

// AdminHandler bootstraps the platform root secret before the enclave
// starts. Every request is authenticated with the administrator's P-256
// key; shares are only ever released wrapped to their owner's key.
type AdminHandler struct {
	mu           sync.RWMutex
	log          *slog.Logger
	state        BootstrapState
	adminIDs     []string          // sorted, share i belongs to adminIDs[i]
	adminPubKeys map[string][]byte // admin ID to public key PEM
	adminShares  map[string]*SecureShare
	root         *platform.ShamirRoot
	completeChan chan struct{}

	threshold int
}

func NewAdminHandler(log *slog.Logger, adminPubKeys map[string][]byte) *AdminHandler {
	ids := make([]string, 0, len(adminPubKeys))
	for id := range adminPubKeys {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return &AdminHandler{
		log:          log,
		state:        StateInitial,
		adminIDs:     ids,
		adminPubKeys: adminPubKeys,
		adminShares:  make(map[string]*SecureShare),
		completeChan: make(chan struct{}),
	}
}

// WaitForBootstrap blocks until the root is available or ctx is done.
func (h *AdminHandler) WaitForBootstrap(ctx context.Context) error {
	select {
	case <-h.completeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Root returns the unlocked root once bootstrap is complete, nil before.
func (h *AdminHandler) Root() *platform.ShamirRoot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != StateComplete {
		return nil
	}
	return h.root
}

func (h *AdminHandler) AdminRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.handleStatus)
	r.Post("/init/generate", h.handleInitGenerate)
	r.Post("/init/recover", h.handleInitRecover)
	r.Post("/share", h.handleSubmitShare)
	r.Get("/share", h.handleGetShare)

	return r
}

func (h *AdminHandler) shamirConfig(threshold int) platform.ShamirConfig {
	keys := make([][]byte, len(h.adminIDs))
	for i, id := range h.adminIDs {
		keys[i] = h.adminPubKeys[id]
	}
	return platform.ShamirConfig{Threshold: threshold, AdminPubKeys: keys}
}

func (h *AdminHandler) complete() {
	h.state = StateComplete
	close(h.completeChan)
}

// StatusResponse is returned by GET /admin/status.
type StatusResponse struct {
	State       string `json:"state"`
	Threshold   int    `json:"threshold,omitempty"`
	TotalShares int    `json:"total_shares,omitempty"`
}

// GenerateResponse is returned by POST /admin/init/generate.
type GenerateResponse struct {
	Threshold   int            `json:"threshold"`
	TotalShares int            `json:"total_shares"`
	Assignments map[string]int `json:"share_assignments"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type thresholdRequest struct {
	Threshold int `json:"threshold"`
}

type shareSubmission struct {
	Share     string `json:"share"`
	Signature string `json:"signature"`
}

// authenticated checks the admin signature and decodes the JSON body into
// v when v is not nil. On failure the response is already written.
func (h *AdminHandler) authenticated(w http.ResponseWriter, r *http.Request, v any) (string, bool) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if v != nil {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			http.Error(w, "Malformed JSON body", http.StatusBadRequest)
			return "", false
		}
	}
	return adminID, true
}

func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := StatusResponse{State: h.state.String()}
	if h.state == StateGeneratingShares || h.state == StateRecovering {
		resp.Threshold = h.threshold
		resp.TotalShares = len(h.adminIDs)
	}
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleInitGenerate creates a fresh root and wraps one share to every
// registered admin. Bootstrap completes once every share was fetched.
func (h *AdminHandler) handleInitGenerate(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	adminID, ok := h.authenticated(w, r, &req)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateInitial {
		http.Error(w, "Bootstrap was already started", http.StatusBadRequest)
		return
	}

	secret := make([]byte, platform.RootSecretSize)
	if _, err := rand.Read(secret); err != nil {
		h.log.Error("Failed to draw root secret", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer cryptoutils.Wipe(secret)

	root, shares, err := platform.NewShamirRoot(secret, h.shamirConfig(req.Threshold))
	if err != nil {
		http.Error(w, fmt.Sprintf("Cannot split root secret: %v", err), http.StatusBadRequest)
		return
	}

	wrapped, err := h.wrapShares(shares)
	if err != nil {
		root.Wipe()
		h.log.Error("Failed to wrap shares", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.root = root
	h.adminShares = wrapped
	h.threshold = req.Threshold
	h.state = StateGeneratingShares

	resp := GenerateResponse{
		Threshold:   req.Threshold,
		TotalShares: len(shares),
		Assignments: make(map[string]int, len(h.adminIDs)),
	}
	for i, id := range h.adminIDs {
		resp.Assignments[id] = i
	}
	writeJSON(w, http.StatusOK, resp)

	h.log.Info("Generated root secret", "adminID", adminID, "threshold", req.Threshold, "shares", len(shares))
}

// wrapShares wraps share i to adminIDs[i] and wipes the plain shares.
func (h *AdminHandler) wrapShares(shares [][]byte) (map[string]*SecureShare, error) {
	defer func() {
		for _, share := range shares {
			cryptoutils.Wipe(share)
		}
	}()

	wrapped := make(map[string]*SecureShare, len(shares))
	for i, share := range shares {
		id := h.adminIDs[i]
		ct, err := cryptoutils.WrapForAdmin(h.adminPubKeys[id], share)
		if err != nil {
			return nil, fmt.Errorf("admin %s: %w", id, err)
		}
		wrapped[id] = &SecureShare{AdminID: id, ShareIndex: i, EncryptedShare: ct}
	}
	return wrapped, nil
}

// handleGetShare releases the caller's own wrapped share.
func (h *AdminHandler) handleGetShare(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.authenticated(w, r, nil)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateGeneratingShares {
		http.Error(w, "Shares are not being distributed", http.StatusBadRequest)
		return
	}
	share, found := h.adminShares[adminID]
	if !found {
		http.Error(w, "No share for this admin", http.StatusNotFound)
		return
	}

	share.Retrieved = true
	h.log.Info("Share fetched", "adminID", adminID, "shareIndex", share.ShareIndex)

	if !slices.ContainsFunc(h.adminIDs, func(id string) bool { return !h.adminShares[id].Retrieved }) {
		h.complete()
		h.log.Info("Every share was fetched, bootstrap complete")
	}

	writeJSON(w, http.StatusOK, ShareResponse{
		ShareIndex:     share.ShareIndex,
		EncryptedShare: base64.StdEncoding.EncodeToString(share.EncryptedShare),
	})
}

func (h *AdminHandler) handleInitRecover(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	adminID, ok := h.authenticated(w, r, &req)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateInitial {
		http.Error(w, "Bootstrap was already started", http.StatusBadRequest)
		return
	}

	root, err := platform.NewShamirRootRecovery(h.shamirConfig(req.Threshold))
	if err != nil {
		http.Error(w, fmt.Sprintf("Cannot start recovery: %v", err), http.StatusBadRequest)
		return
	}

	h.root = root
	h.threshold = req.Threshold
	h.state = StateRecovering

	writeJSON(w, http.StatusOK, messageResponse{Message: "recovery started, submit shares with POST /admin/share"})
	h.log.Info("Recovery started", "adminID", adminID, "threshold", req.Threshold)
}

// handleSubmitShare accepts a plain share together with the submitting
// admin's signature over it.
func (h *AdminHandler) handleSubmitShare(w http.ResponseWriter, r *http.Request) {
	var req shareSubmission
	adminID, ok := h.authenticated(w, r, &req)
	if !ok {
		return
	}

	share, err := base64.StdEncoding.DecodeString(req.Share)
	if err != nil {
		http.Error(w, "Share is not valid base64", http.StatusBadRequest)
		return
	}
	defer cryptoutils.Wipe(share)
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		http.Error(w, "Signature is not valid base64", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRecovering {
		http.Error(w, "Recovery was not started", http.StatusBadRequest)
		return
	}

	if err := h.root.SubmitShare(share, signature, h.adminPubKeys[adminID]); err != nil {
		h.log.Warn("Rejected share", "adminID", adminID, "err", err)
		http.Error(w, fmt.Sprintf("Share rejected: %v", err), http.StatusBadRequest)
		return
	}

	if !h.root.IsUnlocked() {
		h.log.Info("Share accepted", "adminID", adminID)
		writeJSON(w, http.StatusOK, messageResponse{Message: "share accepted, waiting for more shares"})
		return
	}

	h.complete()
	h.log.Info("Root secret recovered", "adminID", adminID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "root secret recovered"})
}

var (
	errMissingAuth    = errors.New("missing admin headers")
	errUnknownAdmin   = errors.New("unknown admin")
	errBadSignature   = errors.New("signature does not verify")
	errSignatureShape = errors.New("signature is not base64")
)

// verifyAdmin authenticates a request. The X-Admin-Signature header holds
// a base64 ASN.1 ECDSA signature over SHA-256(path || body) made with the
// key registered for X-Admin-ID. The body is restored for the handler.
func (h *AdminHandler) verifyAdmin(r *http.Request) (string, bool) {
	id, err := h.authenticate(r)
	if err != nil {
		h.log.Warn("Admin request rejected", "adminID", id, "path", r.URL.Path, "err", err)
		return id, false
	}
	h.log.Debug("Admin request authenticated", "adminID", id)
	return id, true
}

func (h *AdminHandler) authenticate(r *http.Request) (string, error) {
	id, sigHeader := r.Header.Get("X-Admin-ID"), r.Header.Get("X-Admin-Signature")
	if id == "" || sigHeader == "" {
		return id, errMissingAuth
	}

	pem, known := h.adminPubKeys[id]
	if !known {
		return id, errUnknownAdmin
	}
	pub, err := cryptoutils.Pubkey(pem).ECDSA()
	if err != nil {
		return id, fmt.Errorf("registered key: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigHeader)
	if err != nil {
		return id, errSignatureShape
	}

	var body []byte
	if r.Body != nil {
		if body, err = io.ReadAll(r.Body); err != nil {
			return id, fmt.Errorf("reading body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	digest := requestDigest(r.URL.Path, body)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return id, errBadSignature
	}
	return id, nil
}

func requestDigest(path string, body []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write(body)
	var out [sha256.Size]byte
	h.Sum(out[:0])
	return out
}

// SignAdminRequest produces the X-Admin-Signature header value for a
// request to path with body.
func SignAdminRequest(key *ecdsa.PrivateKey, path string, body []byte) (string, error) {
	digest := requestDigest(path, body)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// AdminKeysFile is the JSON layout of the admin key registry.
type AdminKeysFile struct {
	Admins []AdminKeyEntry `json:"admins"`
}

// AdminKeyEntry registers one admin by id and PEM public key.
type AdminKeyEntry struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"`
}

// LoadAdminKeys reads an AdminKeysFile and returns the keys by admin id.
// Every key must be a valid P-256 PEM public key and ids must be unique.
func LoadAdminKeys(r io.Reader) (map[string][]byte, error) {
	var file AdminKeysFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("admin keys: %w", err)
	}

	keys := make(map[string][]byte, len(file.Admins))
	for _, entry := range file.Admins {
		if _, dup := keys[entry.ID]; dup {
			return nil, fmt.Errorf("admin keys: duplicate id %q", entry.ID)
		}
		if err := cryptoutils.Pubkey(entry.PubKey).Validate(); err != nil {
			return nil, fmt.Errorf("admin keys: %q: %w", entry.ID, err)
		}
		keys[entry.ID] = []byte(entry.PubKey)
	}
	return keys, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
