package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ruteri/tee-kms-core/platform"
)

// AdminClient talks to the admin API on behalf of one administrator.
type AdminClient struct {
	baseURL    string
	adminID    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewAdminClient creates a client for the admin API mounted at baseURL,
// e.g. "http://localhost:8080/admin".
func NewAdminClient(baseURL, adminID string, privateKey *ecdsa.PrivateKey) *AdminClient {
	return &AdminClient{
		baseURL:    baseURL,
		adminID:    adminID,
		privateKey: privateKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ShareResponse is a share released by GET /admin/share.
type ShareResponse struct {
	ShareIndex     int    `json:"share_index"`
	EncryptedShare string `json:"encrypted_share"`
}

func (c *AdminClient) GetStatus() (string, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/status")
	if err != nil {
		return "", fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	var result StatusResponse
	if err := decodeResponse(resp, &result); err != nil {
		return "", err
	}
	return result.State, nil
}

// InitGenerate asks the enclave to generate a fresh root split between
// all registered admins.
func (c *AdminClient) InitGenerate(threshold int) (GenerateResponse, error) {
	var resp GenerateResponse
	err := c.do(http.MethodPost, "/init/generate", thresholdRequest{Threshold: threshold}, &resp)
	return resp, err
}

func (c *AdminClient) InitRecover(threshold int) error {
	return c.do(http.MethodPost, "/init/recover", thresholdRequest{Threshold: threshold}, nil)
}

// FetchShare retrieves this admin's wrapped share.
func (c *AdminClient) FetchShare() (ShareResponse, error) {
	var share ShareResponse
	err := c.do(http.MethodGet, "/share", nil, &share)
	return share, err
}

// SubmitShare signs and submits a decrypted share.
func (c *AdminClient) SubmitShare(share []byte) error {
	signature, err := platform.SignShare(share, c.privateKey)
	if err != nil {
		return fmt.Errorf("failed to sign share: %w", err)
	}
	return c.do(http.MethodPost, "/share", shareSubmission{
		Share:     base64.StdEncoding.EncodeToString(share),
		Signature: base64.StdEncoding.EncodeToString(signature),
	}, nil)
}

// WaitForCompletion polls the status until the bootstrap is complete.
func (c *AdminClient) WaitForCompletion(timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		status, err := c.GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get bootstrap status: %w", err)
		}
		if status == StateComplete.String() {
			return nil
		}
		time.Sleep(interval)
	}

	return fmt.Errorf("timeout waiting for bootstrap completion")
}

func (c *AdminClient) do(method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := CreateSignedAdminRequest(method, c.baseURL+path, payload, c.adminID, c.privateKey)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("request failed with code %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CreateSignedAdminRequest creates a request carrying the admin
// authentication headers. The URL path and body are signed.
func CreateSignedAdminRequest(method, reqURL string, body []byte, adminID string, privateKey *ecdsa.PrivateKey) (*http.Request, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	parsedURL, err := url.Parse(reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	signature, err := SignAdminRequest(privateKey, parsedURL.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set("X-Admin-ID", adminID)
	req.Header.Set("X-Admin-Signature", signature)
	return req, nil
}
