package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/interstellar-swap/relayer/internal/types"
)

// extensionFieldCount is the number of offset-indexed fields in an order
// extension. Custom data rides after them and is not offset-indexed.
const extensionFieldCount = 8

// Extension is an order's optional auxiliary data block. The eight indexed
// fields follow the contract's declared order; empty fields contribute no
// bytes but still occupy an offset slot.
type Extension struct {
	MakerAssetSuffix []byte
	TakerAssetSuffix []byte
	MakingAmountData []byte
	TakingAmountData []byte
	Predicate        []byte
	MakerPermit      []byte
	PreInteraction   []byte
	PostInteraction  []byte
	CustomData       []byte
}

// fields returns the indexed fields in contract order.
func (x *Extension) fields() [extensionFieldCount][]byte {
	return [extensionFieldCount][]byte{
		x.MakerAssetSuffix,
		x.TakerAssetSuffix,
		x.MakingAmountData,
		x.TakingAmountData,
		x.Predicate,
		x.MakerPermit,
		x.PreInteraction,
		x.PostInteraction,
	}
}

// Empty reports whether the extension carries no bytes at all.
func (x *Extension) Empty() bool {
	for _, f := range x.fields() {
		if len(f) > 0 {
			return false
		}
	}
	return len(x.CustomData) == 0
}

// Encode produces the wire form: a 32-byte header holding eight cumulative
// 32-bit end offsets (field i's end offset at bits [32*i, 32*i+32)),
// followed by the concatenated field data, followed by custom data.
func (x *Extension) Encode() []byte {
	var header [32]byte
	var data []byte

	offset := uint32(0)
	for i, field := range x.fields() {
		offset += uint32(len(field))
		data = append(data, field...)
		// Bits [32*i, 32*i+32) of the big-endian word are the 4 bytes
		// at [28-4*i, 32-4*i).
		binary.BigEndian.PutUint32(header[28-4*i:32-4*i], offset)
	}

	out := make([]byte, 0, 32+len(data)+len(x.CustomData))
	out = append(out, header[:]...)
	out = append(out, data...)
	out = append(out, x.CustomData...)
	return out
}

// Hash returns keccak256 of the encoded extension; the order salt binds to
// its low 160 bits.
func (x *Extension) Hash() [32]byte {
	var h [32]byte
	copy(h[:], crypto.Keccak256(x.Encode()))
	return h
}

// DecodeExtensionOffsets reads the eight cumulative end offsets back out of
// an encoded extension's header word.
func DecodeExtensionOffsets(encoded []byte) ([extensionFieldCount]uint32, error) {
	var offsets [extensionFieldCount]uint32
	if len(encoded) < 32 {
		return offsets, fmt.Errorf("extension shorter than offset header: %w", types.ErrEncoding)
	}
	for i := 0; i < extensionFieldCount; i++ {
		offsets[i] = binary.BigEndian.Uint32(encoded[28-4*i : 32-4*i])
	}
	last := offsets[extensionFieldCount-1]
	if int(last) > len(encoded)-32 {
		return offsets, fmt.Errorf("extension field data truncated at offset %d: %w", last, types.ErrEncoding)
	}
	for i := 1; i < extensionFieldCount; i++ {
		if offsets[i] < offsets[i-1] {
			return offsets, fmt.Errorf("extension offsets not monotonic: %w", types.ErrEncoding)
		}
	}
	return offsets, nil
}
