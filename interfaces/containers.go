package interfaces

import "encoding/binary"

// Container layouts shared with the untrusted host. All integers are
// little-endian.
//
//	KeyBlob: keyspec u32 | digest u32 | padding u32 | origin u32 | purpose u32 | keybloblen u32 | keyblob[keybloblen]
//	Data:    datalen u32 | data[datalen]
const (
	KeyMetadataSize   = 20
	KeyBlobHeaderSize = KeyMetadataSize + 4
	DataHeaderSize    = 4
)

// KeyBlobSize is the total container size for a key blob with n payload bytes.
func KeyBlobSize(n uint32) uint64 { return KeyBlobHeaderSize + uint64(n) }

// DataSize is the total container size for a data buffer with n payload bytes.
func DataSize(n uint32) uint64 { return DataHeaderSize + uint64(n) }

// KeyBlob is a sealed key container as passed across the enclave boundary.
// The declared length in the header must always match the slice length.
type KeyBlob []byte

// NewKeyBlob allocates a key blob container with room for n sealed bytes.
// A zero n produces a size-query container for CreateKey.
func NewKeyBlob(md KeyMetadata, n uint32) KeyBlob {
	k := make(KeyBlob, KeyBlobSize(n))
	k.SetMetadata(md)
	k.SetDeclaredLen(n)
	return k
}

// HasHeader reports whether the container is long enough to hold its header.
func (k KeyBlob) HasHeader() bool { return len(k) >= KeyBlobHeaderSize }

// SizeValid reports whether the container size equals header size plus
// the declared length.
func (k KeyBlob) SizeValid() bool {
	return k.HasHeader() && uint64(len(k)) == KeyBlobSize(k.DeclaredLen())
}

// Metadata decodes the metadata header. The caller must have checked HasHeader.
func (k KeyBlob) Metadata() KeyMetadata {
	return KeyMetadata{
		KeySpec:     KeySpec(binary.LittleEndian.Uint32(k[0:4])),
		DigestMode:  DigestMode(binary.LittleEndian.Uint32(k[4:8])),
		PaddingMode: PaddingMode(binary.LittleEndian.Uint32(k[8:12])),
		Origin:      Origin(binary.LittleEndian.Uint32(k[12:16])),
		Purpose:     KeyPurpose(binary.LittleEndian.Uint32(k[16:20])),
	}
}

// SetMetadata encodes md into the metadata header.
func (k KeyBlob) SetMetadata(md KeyMetadata) {
	binary.LittleEndian.PutUint32(k[0:4], uint32(md.KeySpec))
	binary.LittleEndian.PutUint32(k[4:8], uint32(md.DigestMode))
	binary.LittleEndian.PutUint32(k[8:12], uint32(md.PaddingMode))
	binary.LittleEndian.PutUint32(k[12:16], uint32(md.Origin))
	binary.LittleEndian.PutUint32(k[16:20], uint32(md.Purpose))
}

// MetadataBytes returns the encoded metadata, used to bind it to sealed key material.
func (k KeyBlob) MetadataBytes() []byte { return k[:KeyMetadataSize] }

// DeclaredLen is the sealed length recorded in the header.
func (k KeyBlob) DeclaredLen() uint32 {
	return binary.LittleEndian.Uint32(k[KeyMetadataSize:KeyBlobHeaderSize])
}

// SetDeclaredLen records n as the sealed length.
func (k KeyBlob) SetDeclaredLen(n uint32) {
	binary.LittleEndian.PutUint32(k[KeyMetadataSize:KeyBlobHeaderSize], n)
}

// Sealed returns the sealed key bytes. The caller must have checked SizeValid.
func (k KeyBlob) Sealed() []byte { return k[KeyBlobHeaderSize:] }

// Data is a length-prefixed buffer used for plaintext, ciphertext, AAD,
// signatures and wrapped data keys. A zero declared length on an output
// buffer asks the callee for the required length.
type Data []byte

// NewData allocates a data container whose payload has n zero bytes.
func NewData(n uint32) Data {
	d := make(Data, DataSize(n))
	d.SetLen(n)
	return d
}

// DataFrom wraps a copy of p in a data container.
func DataFrom(p []byte) Data {
	d := NewData(uint32(len(p)))
	copy(d[DataHeaderSize:], p)
	return d
}

// HasHeader reports whether the container is long enough to hold its header.
func (d Data) HasHeader() bool { return len(d) >= DataHeaderSize }

// SizeValid reports whether the container size equals header size plus
// the declared length.
func (d Data) SizeValid() bool {
	return d.HasHeader() && uint64(len(d)) == DataSize(d.Len())
}

// Len is the declared payload length.
func (d Data) Len() uint32 { return binary.LittleEndian.Uint32(d[0:DataHeaderSize]) }

// SetLen records n as the payload length.
func (d Data) SetLen(n uint32) { binary.LittleEndian.PutUint32(d[0:DataHeaderSize], n) }

// Payload returns the declared payload, bounded by the container.
func (d Data) Payload() []byte {
	if !d.HasHeader() {
		return nil
	}
	end := DataSize(d.Len())
	if end > uint64(len(d)) {
		end = uint64(len(d))
	}
	return d[DataHeaderSize:end]
}
