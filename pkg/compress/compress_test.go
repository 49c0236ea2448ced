package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	c, err := NewCodec(DefaultLevel, nil)
	require.NoError(t, err)
	defer c.Close()

	in := []byte(`{"product":"s2_l2a","uris":["s3://a"],"metadata":{"id":"x"}}`)
	compressed, err := c.Compress(in)
	require.NoError(t, err)
	assert.NotEqual(t, in, compressed)

	out, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodec_RejectsBadLevel(t *testing.T) {
	_, err := NewCodec(0, nil)
	assert.Error(t, err)
	_, err = NewCodec(23, nil)
	assert.Error(t, err)
}

func TestCodec_ReadOnlyRefusesCompress(t *testing.T) {
	c, err := NewDecodeOnlyCodec(nil)
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.Writable())
	_, err = c.Compress([]byte("x"))
	assert.Error(t, err)
}

func TestCodec_WithDictionaryRoundTrips(t *testing.T) {
	samples := make([][]byte, 0, 1000)
	for i := 0; i < 1000; i++ {
		samples = append(samples, []byte(`{"product":"s2_l2a","uris":["s3://bucket/path"],"metadata":{"id":"deadbeef"}}`))
	}
	dict, err := TrainDictionary(samples, 4*1024)
	require.NoError(t, err)
	require.NotEmpty(t, dict)

	writer, err := NewCodec(DefaultLevel, dict)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := NewDecodeOnlyCodec(dict)
	require.NoError(t, err)
	defer reader.Close()

	compressed, err := writer.Compress(samples[0])
	require.NoError(t, err)

	out, err := reader.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, samples[0], out)
}

func TestTrainDictionary_EmptyInput(t *testing.T) {
	dict, err := TrainDictionary(nil, 1024)
	require.NoError(t, err)
	assert.Nil(t, dict)
}

func TestTrainDictionary_RespectsTargetSize(t *testing.T) {
	samples := make([][]byte, 0, 200)
	for i := 0; i < 200; i++ {
		samples = append(samples, []byte("0123456789abcdef0123456789abcdefXYZ"))
	}
	dict, err := TrainDictionary(samples, 64)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(dict), 64)
}
