package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// A Hash256 is a generic 256-bit cryptographic hash. Coin ids, puzzle hashes
// and announcement ids are all Hash256 values over canonical bytes.
type Hash256 [32]byte

func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash256) Bytes() []byte {
	return h[:]
}

func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

// MarshalText renders the hash as lowercase hex, so hashes embed cleanly in
// JSON documents and KV payloads.
func (h Hash256) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash256) UnmarshalText(b []byte) error {
	parsed, err := HashFromHex(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func HashFromHex(s string) (Hash256, error) {
	var h Hash256
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("ledger: hash must be 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashBytes computes the sha256 digest of data.
func HashBytes(data []byte) Hash256 {
	return Hash256(sha256.Sum256(data))
}

// HashConcat hashes the concatenation of the given byte slices.
func HashConcat(parts ...[]byte) Hash256 {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}
