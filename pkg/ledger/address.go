package ledger

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// EncodeAddress renders a puzzle hash as a bech32m address under the given
// human-readable prefix (network-specific, e.g. "txch" on testnets).
func EncodeAddress(hrp string, puzzleHash Hash256) (string, error) {
	converted, err := bech32.ConvertBits(puzzleHash[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(hrp, converted)
}

// DecodeAddress parses a bech32m address and returns its puzzle hash,
// validating the expected prefix and checksum variant.
func DecodeAddress(hrp string, addr string) (Hash256, error) {
	var h Hash256
	gotHRP, data, version, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return h, err
	}
	if version != bech32.VersionM {
		return h, fmt.Errorf("ledger: address %q does not carry a bech32m checksum", addr)
	}
	if gotHRP != hrp {
		return h, fmt.Errorf("ledger: address prefix %q, want %q", gotHRP, hrp)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return h, err
	}
	if len(converted) != len(h) {
		return h, fmt.Errorf("ledger: address payload must be 32 bytes, got %d", len(converted))
	}
	copy(h[:], converted)
	return h, nil
}
