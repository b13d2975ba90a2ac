// Package platform provides the hardware trust capability the enclave core
// runs on: randomness, a sealing key, integrity reports and quotes.
//
// # Software
//
// Software derives every key from a root secret and produces native
// quotes signed by a derived quoting key. It lets the enclave core run and
// be tested on commodity hardware.
//
// # TDX and Remote
//
// TDX and Remote keep the Software key hierarchy but produce hardware
// quotes, either directly through the TDX guest interface or through a
// quote service reached over HTTP.
//
// # ShamirRoot
//
// ShamirRoot keeps the root secret out of persistent storage. The root is
// split into administrator shares, and a threshold of shares signed by
// registered administrators rebuilds it in memory:
//
//	root, shares, err := platform.NewShamirRoot(secret, platform.ShamirConfig{
//	    Threshold:    2,
//	    AdminPubKeys: adminKeys,
//	})
//
// Use New to build a platform from configuration.
package platform
