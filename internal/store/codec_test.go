package store

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEmbedding_RoundTripsWithinQuantizationError(t *testing.T) {
	original := []float32{0.5, -0.25, 1.0, -1.0, 0}

	encoded := EncodeEmbedding(original)
	decoded, err := DecodeEmbedding(encoded)
	require.NoError(t, err)

	require.Len(t, decoded, len(original))
	for i, v := range original {
		assert.InDelta(t, v, decoded[i], 0.01)
	}
}

func TestEncodeEmbedding_AllZeros(t *testing.T) {
	encoded := EncodeEmbedding([]float32{0, 0, 0})
	decoded, err := DecodeEmbedding(encoded)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, decoded)
}

func TestDecodeEmbedding_TooShortIsError(t *testing.T) {
	_, err := DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeDecodeVolume_RoundTrip(t *testing.T) {
	v := &Volume{
		ID:        "v1",
		Text:      "hello world",
		Embedding: []float32{1, 0.5, -0.5},
		Metadata:  map[string]string{"topic": "docs"},
		Timestamp: 1234567890,
	}

	encoded, err := EncodeVolume(v)
	require.NoError(t, err)

	decoded, err := DecodeVolume(encoded)
	require.NoError(t, err)

	assert.Equal(t, v.ID, decoded.ID)
	assert.Equal(t, v.Text, decoded.Text)
	assert.Equal(t, v.Metadata, decoded.Metadata)
	assert.Equal(t, v.Timestamp, decoded.Timestamp)
	require.Len(t, decoded.Embedding, len(v.Embedding))
	for i, f := range v.Embedding {
		assert.InDelta(t, f, decoded.Embedding[i], 0.01)
	}
}

func TestDecodeVolume_CorruptBytesIsError(t *testing.T) {
	_, err := DecodeVolume([]byte("not a gob stream"))
	assert.Error(t, err)
}

func TestEncodeDecodeAccessStats_RoundTrip(t *testing.T) {
	stats := map[string]AccessStats{
		"v1": {AccessCount: 3, LastAccessed: 100},
	}

	encoded, err := EncodeAccessStats(stats)
	require.NoError(t, err)

	decoded, err := DecodeAccessStats(encoded)
	require.NoError(t, err)
	assert.Equal(t, stats, decoded)
}

func TestBlobMap_ChecksumMismatchIsDetected(t *testing.T) {
	blobs := map[string][]byte{"volumes": []byte("hello")}

	encoded, err := encodeBlobMap(blobs)
	require.NoError(t, err)

	// Decode the envelope and tamper with the stored checksum directly
	// (rather than flipping an arbitrary byte of the stream) so the
	// Blobs payload is guaranteed untouched and only the checksum is stale.
	var env blobMapEnvelope
	require.NoError(t, gob.NewDecoder(bytes.NewReader(encoded)).Decode(&env))
	env.Checksum[0] ^= 0xFF

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(env))

	decoded, err := decodeBlobMap(buf.Bytes())
	require.True(t, ErrChecksumMismatch(err))
	// The envelope itself still decoded fine; only the checksum is stale,
	// so the caller gets the blobs back to recover what it can rather than
	// losing the whole snapshot.
	assert.Equal(t, blobs, decoded)
}

func TestBlobMap_RoundTripNoCorruption(t *testing.T) {
	blobs := map[string][]byte{"volumes": []byte("hello"), "access": []byte("world")}

	encoded, err := encodeBlobMap(blobs)
	require.NoError(t, err)

	decoded, err := decodeBlobMap(encoded)
	require.NoError(t, err)
	assert.Equal(t, blobs, decoded)
}
