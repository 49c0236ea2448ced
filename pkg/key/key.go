// Package key implements the deterministic logical-key-to-bytes
// encoding used for dataset UUIDs and group names. The catalog's
// "metadata/<name>" and "product/<name>" keys in the info sub-database
// are built as plain strings and do not go through this package.
package key

import (
	"fmt"
	"math/big"

	"github.com/cuemby/geocache/pkg/cacheerr"
	"github.com/google/uuid"
)

// Encode turns a logical key into its byte encoding. Accepted types:
// string, []byte, uuid.UUID, any integer type, and []any tuples whose
// elements are themselves one of the above. Encoding is deterministic
// and, within a single variant, order-preserving: for two keys of the
// same kind and width, k1 < k2 implies Encode(k1) < Encode(k2)
// lexicographically. Any other type is a programming error, reported
// as cacheerr.ErrMisuse.
func Encode(k any) ([]byte, error) {
	switch v := k.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case uuid.UUID:
		b := v // 16 bytes, big-endian per RFC 4122 layout
		return b[:], nil
	case int:
		return encodeInt(big.NewInt(int64(v)))
	case int8:
		return encodeInt(big.NewInt(int64(v)))
	case int16:
		return encodeInt(big.NewInt(int64(v)))
	case int32:
		return encodeInt(big.NewInt(int64(v)))
	case int64:
		return encodeInt(big.NewInt(v))
	case uint:
		return encodeUint(new(big.Int).SetUint64(uint64(v)))
	case uint8:
		return encodeUint(new(big.Int).SetUint64(uint64(v)))
	case uint16:
		return encodeUint(new(big.Int).SetUint64(uint64(v)))
	case uint32:
		return encodeUint(new(big.Int).SetUint64(uint64(v)))
	case uint64:
		return encodeUint(new(big.Int).SetUint64(v))
	case []any:
		out := make([]byte, 0, 16*len(v))
		for _, elem := range v {
			b, err := Encode(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("key: unsupported logical key type %T: %w", k, cacheerr.ErrMisuse)
	}
}

// MustEncode is Encode but panics on an unsupported key type. It
// exists for call sites that construct keys from compile-time-known
// variants where an error can only mean a programming mistake.
func MustEncode(k any) []byte {
	b, err := Encode(k)
	if err != nil {
		panic(err)
	}
	return b
}

var (
	max32 = new(big.Int).SetUint64(1<<32 - 1)
	max128 = func() *big.Int {
		one := big.NewInt(1)
		shifted := new(big.Int).Lsh(one, 128)
		return shifted.Sub(shifted, one)
	}()
)

// encodeInt rejects negative integers (the source's key space is
// unsigned throughout: UUIDs, counts, sizes) and otherwise delegates
// to encodeUint.
func encodeInt(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 {
		return nil, fmt.Errorf("key: negative integers are not a valid logical key: %s", v)
	}
	return encodeUint(v)
}

// encodeUint implements the width-selection rule from the original
// implementation: 4 bytes if it fits in 32 bits, 16 bytes if it fits
// in 128 bits, otherwise the decimal string representation. The
// 128-bit-to-decimal fallback boundary is preserved byte-for-byte
// rather than rejected outright, per the open question in the spec:
// no caller in practice produces an integer that large, but changing
// the boundary silently would be a format break for anyone who does.
func encodeUint(v *big.Int) ([]byte, error) {
	if v.Cmp(max32) <= 0 {
		out := make([]byte, 4)
		v.FillBytes(out)
		return out, nil
	}
	if v.Cmp(max128) <= 0 {
		out := make([]byte, 16)
		v.FillBytes(out)
		return out, nil
	}
	return []byte(v.String()), nil
}
