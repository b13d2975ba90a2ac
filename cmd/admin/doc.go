// Command admin drives the root secret bootstrap of an enclave host.
//
// The root secret backing the software platform's sealing key is never
// stored. It is split with Shamir's scheme across a fixed set of admins, each
// holding one share wrapped to their P-256 key, and reconstructed in memory
// once a threshold of admins submit their shares.
//
// Commands:
//
//	status                 - print the bootstrap state
//	generate-admin         - create an admin keypair, prints the admin id
//	generate-admin-config  - build the server's admin key file
//	init-generate          - split a fresh root secret across all admins
//	init-recovery          - start collecting shares
//	fetch-admin-share      - download this admin's wrapped share
//	submit-admin-share     - unwrap and submit the stored share
//
// Typical flow with three admins and a threshold of two:
//
//	admin generate-admin --admin-privkey-file=a1.pem --admin-pubkey-file=a1.pub
//	admin generate-admin-config --admin-pubkey-files=a1.pub,a2.pub,a3.pub
//	ehsm serve --admin-keys-file=ehsm-admins.json ...
//	admin init-generate --threshold=2
//	admin fetch-admin-share            (every admin)
//
// After a restart the host comes up locked:
//
//	admin init-recovery --threshold=2
//	admin submit-admin-share           (any two admins)
//
// Every request except status is signed with the admin's key.
package main
