// Package attestation implements the key exchange that binds an enclave to
// an external verifying party.
//
// The flow follows the SIGMA-style exchange of enclave remote attestation:
//
//  1. The enclave opens a context (Exchange.Init) bound to the verifying
//     party's long-term P-256 key and sends its ephemeral key in msg1.
//  2. The verifying party answers with msg2: its own ephemeral key signed
//     with its long-term key over Gb || Ga, and a MAC under SMK.
//  3. The enclave verifies msg2, derives the session keys and returns
//     msg3, a quote whose report data is SHA-256(Ga || Gb || VK).
//
// Session keys are derived from the ECDH shared x coordinate (little-endian):
//
//	KDK = AES-CMAC(0^16, shared_x)
//	key = AES-CMAC(KDK, 0x01 || label || 0x00 || 0x80 || 0x00), label in {SMK, SK, MK, VK}
//
// SK encrypts issued credentials and MK authenticates attestation results.
// A custom interfaces.KeyDerivationFunc replaces the label derivation on
// both sides.
package attestation
