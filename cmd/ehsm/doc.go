// Command ehsm operates the enclave key-management core.
//
// One-shot commands open the core on a software, TDX or remote-quoting
// platform derived from --root-secret (or --root-passphrase), run a single
// entry point and store the result in a file. Key blobs are written as
// they are returned by the core and stay sealed to the root secret and
// signer identity:
//
//	ehsm --root-secret=$ROOT create-key --spec=EH_AES_GCM_256 --out=cmk.blob
//	ehsm --root-secret=$ROOT encrypt --key=cmk.blob --in=msg --out=msg.enc
//	ehsm --root-secret=$ROOT create-key --spec=EH_RSA_3072 --padding=EH_PAD_RSA_PKCS1_OAEP --out=uk.blob
//	ehsm --root-secret=$ROOT generate-datakey --key=cmk.blob --out=dk.enc
//	ehsm --root-secret=$ROOT export-datakey --key=cmk.blob --in=dk.enc --ukey=uk.blob --out=dk.rsa
//
// attest plays the verifying party: it runs the key exchange against the
// local core, verifies the quote and provisions an API key over the session.
//
// serve keeps the root secret off disk. It waits for a threshold of admins
// to unlock a Shamir-split root through the admin API (see cmd/admin), then
// starts the core and serves quotes and metrics.
package main
