/*
Package httpserver implements the HTTP surface around the enclave key-management core.

The package includes two components, either of which a Server can mount:

1. Quote API - serves quotes to a platform.Remote running in a guest without direct access to the quoting interface
2. Admin API - bootstraps the platform root secret with Shamir's secret sharing

# Quote API

	GET /attest/{report_data}

report_data is 64 hex-encoded bytes. The response body is the raw quote and
the X-Attestation-Type header names its format.

# Admin API

  - POST /admin/init/generate creates a root and wraps one share to each administrator
  - GET /admin/share returns the caller's wrapped share
  - POST /admin/init/recover starts collecting shares
  - POST /admin/share submits a decrypted share signed by its owner
  - GET /admin/status reports the bootstrap state

Every admin request carries X-Admin-ID and X-Admin-Signature, an ECDSA P-256
signature over SHA-256(path || body). See SignAdminRequest.

# Health

/livez, /readyz, /drain and /undrain follow the usual load balancer
conventions. Metrics are served on a separate listener.
*/
package httpserver
