package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
)

// EncodeEmbedding quantizes a float32 embedding to int8 with a per-vector
// scale, the way a compact on-disk vector representation needs to recover
// the original direction within quantization error. The
// wire format is a 4-byte little-endian float32 scale header followed by
// one int8 per dimension.
func EncodeEmbedding(v []float32) []byte {
	scale := embeddingScale(v)

	out := make([]byte, 4+len(v))
	binary.LittleEndian.PutUint32(out[0:4], math.Float32bits(scale))

	for i, f := range v {
		q := 0
		if scale != 0 {
			q = int(math.Round(float64(f) / float64(scale)))
		}
		if q > 127 {
			q = 127
		}
		if q < -128 {
			q = -128
		}
		out[4+i] = byte(int8(q))
	}

	return out
}

// DecodeEmbedding restores an equal-length float32 slice from the encoded
// form. Returns an error if the buffer is too short to contain a header.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("encoded embedding too short: %d bytes", len(b))
	}

	scale := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	payload := b[4:]

	out := make([]float32, len(payload))
	for i, q := range payload {
		out[i] = float32(int8(q)) * scale
	}

	return out, nil
}

// embeddingScale picks the smallest scale that lets the largest-magnitude
// component fill the int8 range, minimizing quantization error.
func embeddingScale(v []float32) float32 {
	var maxAbs float32
	for _, f := range v {
		a := f
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return 0
	}
	return maxAbs / 127.0
}

// blobMapEnvelope wraps the blob map with a checksum so corruption is
// detectable before a single record is even decoded, grounded on the
// gob+SHA-256 model persistence pattern used for recommendation model
// storage in the example corpus (model storage doc comment: "SHA-256
// checksums for data integrity verification").
type blobMapEnvelope struct {
	Blobs    map[string][]byte
	Checksum [32]byte
}

func encodeBlobMap(blobs map[string][]byte) ([]byte, error) {
	checksum := checksumBlobMap(blobs)

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(blobMapEnvelope{Blobs: blobs, Checksum: checksum}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeBlobMap decodes and verifies the envelope. A checksum mismatch is
// not a hard failure: the caller (Stacks, via the snapshot decoder) treats
// it as corruption to recover from per-record, not a load-time abort. Only
// an undecodable gob stream is catastrophic.
func decodeBlobMap(data []byte) (map[string][]byte, error) {
	var env blobMapEnvelope
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode store envelope: %w", err)
	}

	if env.Checksum != checksumBlobMap(env.Blobs) {
		return env.Blobs, errChecksumMismatch
	}

	return env.Blobs, nil
}

var errChecksumMismatch = fmt.Errorf("store snapshot checksum mismatch")

// ErrChecksumMismatch reports whether err indicates the envelope checksum
// didn't match its contents (soft corruption signal, not necessarily fatal).
func ErrChecksumMismatch(err error) bool {
	return err == errChecksumMismatch
}

func checksumBlobMap(blobs map[string][]byte) [32]byte {
	// Deterministic order matters for a stable checksum across re-encodes
	// of the same logical contents.
	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(blobs[k])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// volumeRecord is the gob-serializable form of Volume, with the embedding
// stored in its quantized wire format (EncodeEmbedding/DecodeEmbedding).
type volumeRecord struct {
	ID        string
	Text      string
	Embedding []byte
	Metadata  map[string]string
	Timestamp int64
}

// EncodeVolume serializes a Volume into a corruption-checkable record.
func EncodeVolume(v *Volume) ([]byte, error) {
	rec := volumeRecord{
		ID:        v.ID,
		Text:      v.Text,
		Embedding: EncodeEmbedding(v.Embedding),
		Metadata:  v.Metadata,
		Timestamp: v.Timestamp,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeVolume deserializes a record produced by EncodeVolume. Any error
// (truncated bytes, corrupt gob stream) is reported so the caller can skip
// the record and count it rather than aborting the whole load.
func DecodeVolume(b []byte) (*Volume, error) {
	var rec volumeRecord
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode volume record: %w", err)
	}

	embedding, err := DecodeEmbedding(rec.Embedding)
	if err != nil {
		return nil, fmt.Errorf("decode volume embedding: %w", err)
	}

	return &Volume{
		ID:        rec.ID,
		Text:      rec.Text,
		Embedding: embedding,
		Metadata:  rec.Metadata,
		Timestamp: rec.Timestamp,
	}, nil
}

// EncodeAccessStats serializes the full access-stats block.
func EncodeAccessStats(stats map[string]AccessStats) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stats); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeAccessStats deserializes the access-stats block.
func DecodeAccessStats(b []byte) (map[string]AccessStats, error) {
	var stats map[string]AccessStats
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode access stats: %w", err)
	}
	return stats, nil
}
