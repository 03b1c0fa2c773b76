package codec

import (
	"fmt"
	"math/big"

	"github.com/interstellar-swap/relayer/internal/types"
)

// MakerTraitFlag is a named bit in the maker-traits uint256. The set below
// mirrors the limit order protocol's high-bit flag layout.
type MakerTraitFlag uint

const (
	FlagUnwrapWeth            MakerTraitFlag = 247
	FlagUsePermit2            MakerTraitFlag = 248
	FlagHasExtension          MakerTraitFlag = 249
	FlagNeedCheckEpochManager MakerTraitFlag = 250
	FlagPostInteractionCall   MakerTraitFlag = 251
	FlagPreInteractionCall    MakerTraitFlag = 252
	FlagAllowMultipleFills    MakerTraitFlag = 254
	FlagNoPartialFills        MakerTraitFlag = 255
)

// MakerTraitFlags enumerates every supported flag bit.
var MakerTraitFlags = []MakerTraitFlag{
	FlagUnwrapWeth,
	FlagUsePermit2,
	FlagHasExtension,
	FlagNeedCheckEpochManager,
	FlagPostInteractionCall,
	FlagPreInteractionCall,
	FlagAllowMultipleFills,
	FlagNoPartialFills,
}

// MakerTraits is the maker-traits bitfield under construction.
type MakerTraits struct {
	value *big.Int
}

// NewMakerTraits starts from an all-zero bitfield.
func NewMakerTraits() *MakerTraits {
	return &MakerTraits{value: new(big.Int)}
}

// Set turns a named flag bit on.
func (m *MakerTraits) Set(flag MakerTraitFlag) *MakerTraits {
	m.value.SetBit(m.value, int(flag), 1)
	return m
}

// Has reports whether a named flag bit is set.
func (m *MakerTraits) Has(flag MakerTraitFlag) bool {
	return m.value.Bit(int(flag)) == 1
}

// Value returns the bitfield as a uint256 word.
func (m *MakerTraits) Value() *big.Int {
	return new(big.Int).Set(m.value)
}

// takerTraitsExtensionShift places the extension byte length at bits
// [224, 248) of the taker-traits word.
const takerTraitsExtensionShift = 224

// BuildTakerTraits builds the taker-traits uint256 carrying the extension's
// byte length. The length field is 24 bits wide.
func BuildTakerTraits(extensionLen int) (*big.Int, error) {
	if extensionLen < 0 || extensionLen >= 1<<24 {
		return nil, fmt.Errorf("extension length %d out of 24-bit range: %w", extensionLen, types.ErrEncoding)
	}
	return new(big.Int).Lsh(big.NewInt(int64(extensionLen)), takerTraitsExtensionShift), nil
}
