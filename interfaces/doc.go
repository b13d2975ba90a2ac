// Package interfaces defines the data model shared by the enclave core and
// its collaborators.
//
// # Key description
//
// KeySpec names an algorithm and key size and routes a key to its
// primitive Family. KeyMetadata adds the padding and digest modes, the
// origin and the purpose, and is fixed when a key is created.
//
// # Containers
//
// KeyBlob and Data are byte-level containers with a little-endian u32
// length header. A container is only valid when its size is exactly the
// header plus the declared length. Output containers declaring zero bytes
// ask the callee for the required length.
//
// # Status
//
// Every entry point failure maps to one of a fixed set of statuses through
// StatusOf. Sentinel errors carry the status and may be wrapped.
//
// # Capabilities
//
// Platform (randomness, sealing key, reports), KeyExchange (remote
// attestation contexts), KeyOperations (primitive dispatch) and
// ScratchAllocator (transient plaintext memory) are injected into the core
// so that each can be replaced in tests or on other hardware.
package interfaces
