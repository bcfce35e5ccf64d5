package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope layout:
//
//	magic "WEFT" | version (1 byte) | xxhash64 of body (8 bytes, big-endian) | zstd(msgpack(body))
const (
	envelopeMagic   = "WEFT"
	envelopeVersion = byte(2)
	headerSize      = len(envelopeMagic) + 1 + 8
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// zstdCodecs lazily builds the shared coders. EncodeAll and DecodeAll are safe for concurrent use.
func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

type envelopeBody struct {
	Fingerprint string          `msgpack:"fp"`
	CreatedAt   int64           `msgpack:"ts"`
	Metadata    []byte          `msgpack:"meta,omitempty"`
	Preview     []byte          `msgpack:"preview,omitempty"`
	Outputs     []encodedOutput `msgpack:"out"`
}

type encodedOutput struct {
	Port  string `msgpack:"p"`
	Codec string `msgpack:"c"`
	Data  []byte `msgpack:"d"`
}

// Entry is a cached node result.
type Entry struct {
	Fingerprint string
	Outputs     map[string]any
	Metadata    map[string]any
	Preview     map[string]any
	CreatedAt   time.Time

	// Size is the length of the encoded envelope.
	Size int64
}

// Result rebuilds the NodeResult the entry was stored from.
func (e *Entry) Result() *domain.NodeResult {
	return &domain.NodeResult{
		Outputs:  e.Outputs,
		Metadata: e.Metadata,
		Preview:  e.Preview,
	}
}

// Encode serializes a successful result into an envelope.
// Payloads no codec accepts fail with domain.ErrUnsupportedPayload.
func Encode(fingerprint string, res *domain.NodeResult, createdAt time.Time) ([]byte, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}
	if res.Failed() {
		return nil, fmt.Errorf("refusing to cache failed result")
	}

	ports := make([]string, 0, len(res.Outputs))
	for p := range res.Outputs {
		ports = append(ports, p)
	}
	sort.Strings(ports)

	meta, err := encodeFields(res.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	preview, err := encodeFields(res.Preview)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}

	body := envelopeBody{
		Fingerprint: fingerprint,
		CreatedAt:   createdAt.UnixNano(),
		Metadata:    meta,
		Preview:     preview,
		Outputs:     make([]encodedOutput, 0, len(ports)),
	}
	for _, p := range ports {
		codec, data, err := encodePayload(res.Outputs[p])
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", p, err)
		}
		body.Outputs = append(body.Outputs, encodedOutput{Port: p, Codec: codec, Data: data})
	}

	raw, err := msgpack.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}

	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(raw)/2)
	copy(out, envelopeMagic)
	out[len(envelopeMagic)] = envelopeVersion
	out = enc.EncodeAll(raw, out)
	binary.BigEndian.PutUint64(out[len(envelopeMagic)+1:headerSize], xxhash.Sum64(out[headerSize:]))
	return out, nil
}

// Decode verifies and deserializes an envelope.
// Every verification failure wraps domain.ErrCorruptEntry.
func Decode(fingerprint string, data []byte) (*Entry, error) {
	if len(data) < headerSize || !bytes.Equal(data[:len(envelopeMagic)], []byte(envelopeMagic)) {
		return nil, fmt.Errorf("%w: bad magic", domain.ErrCorruptEntry)
	}
	if v := data[len(envelopeMagic)]; v != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrCorruptEntry, v)
	}
	want := binary.BigEndian.Uint64(data[len(envelopeMagic)+1 : headerSize])
	if got := xxhash.Sum64(data[headerSize:]); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", domain.ErrCorruptEntry)
	}

	_, dec, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd: %w", err)
	}
	raw, err := dec.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", domain.ErrCorruptEntry, err)
	}

	var body envelopeBody
	if err := msgpack.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: body: %v", domain.ErrCorruptEntry, err)
	}
	if body.Fingerprint != fingerprint {
		return nil, fmt.Errorf("%w: fingerprint mismatch (stored %s)", domain.ErrCorruptEntry, body.Fingerprint)
	}

	meta, err := decodeFields(body.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", domain.ErrCorruptEntry, err)
	}
	preview, err := decodeFields(body.Preview)
	if err != nil {
		return nil, fmt.Errorf("%w: preview: %v", domain.ErrCorruptEntry, err)
	}

	entry := &Entry{
		Fingerprint: body.Fingerprint,
		Outputs:     make(map[string]any, len(body.Outputs)),
		Metadata:    meta,
		Preview:     preview,
		CreatedAt:   time.Unix(0, body.CreatedAt),
		Size:        int64(len(data)),
	}
	for _, o := range body.Outputs {
		v, err := decodePayload(o.Codec, o.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: output %q: %v", domain.ErrCorruptEntry, o.Port, err)
		}
		entry.Outputs[o.Port] = v
	}
	return entry, nil
}
