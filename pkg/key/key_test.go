package key

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_UUID(t *testing.T) {
	u := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b, err := Encode(u)
	require.NoError(t, err)
	assert.Equal(t, u[:], b)
	assert.Len(t, b, 16)
}

func TestEncode_String(t *testing.T) {
	b, err := Encode("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)
}

func TestEncode_Bytes(t *testing.T) {
	in := []byte{1, 2, 3}
	b, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, in, b)
}

func TestEncode_Tuple(t *testing.T) {
	b, err := Encode([]any{"metadata/", "eo3"})
	require.NoError(t, err)
	assert.Equal(t, []byte("metadata/eo3"), b)
}

func TestEncode_IntWidths(t *testing.T) {
	small, err := Encode(42)
	require.NoError(t, err)
	assert.Len(t, small, 4)

	large, err := Encode(uint64(1) << 40)
	require.NoError(t, err)
	assert.Len(t, large, 16)
}

func TestEncode_OversizeIntFallsBackToDecimal(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	b, err := encodeUint(huge)
	require.NoError(t, err)
	assert.Equal(t, huge.String(), string(b))
}

func TestEncode_NegativeIntRejected(t *testing.T) {
	_, err := Encode(-1)
	assert.Error(t, err)
}

func TestEncode_UnsupportedType(t *testing.T) {
	_, err := Encode(3.14)
	assert.Error(t, err)
}

func TestMustEncode_PanicsOnBadType(t *testing.T) {
	assert.Panics(t, func() {
		MustEncode(struct{}{})
	})
}

// Property 1 from the spec: within a fixed width, encoding preserves
// the numeric ordering of the inputs.
func TestEncode_OrderPreservingUint32(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("uint32 keys encode in numeric order", prop.ForAll(
		func(a, b uint32) bool {
			ea := MustEncode(a)
			eb := MustEncode(b)
			cmp := bytes.Compare(ea, eb)
			switch {
			case a < b:
				return cmp < 0
			case a > b:
				return cmp > 0
			default:
				return cmp == 0
			}
		},
		gen.UInt32(),
		gen.UInt32(),
	))

	properties.TestingRun(t)
}

func TestEncode_OrderPreservingUUID(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	toUUID := func(hi, lo uint64) uuid.UUID {
		var out uuid.UUID
		for i := 0; i < 8; i++ {
			out[i] = byte(hi >> (56 - 8*i))
			out[8+i] = byte(lo >> (56 - 8*i))
		}
		return out
	}

	properties.Property("UUID keys encode in big-endian byte order", prop.ForAll(
		func(hiA, loA, hiB, loB uint64) bool {
			ua, ub := toUUID(hiA, loA), toUUID(hiB, loB)
			ea := MustEncode(ua)
			eb := MustEncode(ub)
			return bytes.Equal(ea, ua[:]) && bytes.Equal(eb, ub[:]) &&
				bytes.Compare(ea, eb) == bytes.Compare(ua[:], ub[:])
		},
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestEncode_Deterministic(t *testing.T) {
	u := uuid.New()
	a, err1 := Encode(u)
	b, err2 := Encode(u)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, a, b)
}
