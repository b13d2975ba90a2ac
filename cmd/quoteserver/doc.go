// Command quote-server exposes a platform's quoting capability over HTTP.
//
// Enclave hosts started with --platform=remote fetch their quotes from
// GET /attest/{report_data}, where report_data is 64 hex-encoded bytes.
// GET /target_info returns the serving platform's target info. With
// --platform=tdx quotes come from the TDX guest device, with
// --platform=software they are native quotes signed by a key derived from
// the root secret.
package main
