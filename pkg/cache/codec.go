package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes one family of payloads for durable storage.
type Codec interface {
	// Name is persisted next to the encoded bytes to pick the decoder back.
	Name() string
	// Accepts reports whether the codec can encode v.
	Accepts(v any) bool
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

var (
	codecsMu sync.RWMutex
	codecs   = []Codec{tableCodec{}, numericCodec{}, blobCodec{}, valueCodec{}}
)

// RegisterCodec adds a codec for payloads the built-in codecs do not handle.
// Registered codecs are consulted before the built-ins.
func RegisterCodec(c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs = append([]Codec{c}, codecs...)
}

func codecFor(v any) (Codec, bool) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	for _, c := range codecs {
		if c.Accepts(v) {
			return c, true
		}
	}
	return nil, false
}

func codecByName(name string) (Codec, bool) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	for _, c := range codecs {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

func encodePayload(v any) (string, []byte, error) {
	c, ok := codecFor(v)
	if !ok {
		return "", nil, fmt.Errorf("%w: %T", domain.ErrUnsupportedPayload, v)
	}
	data, err := c.Encode(v)
	if err != nil {
		return "", nil, fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	return c.Name(), data, nil
}

func decodePayload(name string, data []byte) (any, error) {
	c, ok := codecByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	return c.Decode(data)
}

// tableCodec stores a Table column by column: a msgpack header naming each
// column and its type, followed by one msgpack-encoded typed vector per column.
type tableCodec struct{}

type columnHeader struct {
	Name string            `msgpack:"n"`
	Type domain.ColumnType `msgpack:"t"`
}

func (tableCodec) Name() string { return "table" }

func (tableCodec) Accepts(v any) bool {
	switch v.(type) {
	case *domain.Table, domain.Table:
		return true
	}
	return false
}

func (tableCodec) Encode(v any) ([]byte, error) {
	var t *domain.Table
	switch tv := v.(type) {
	case *domain.Table:
		t = tv
	case domain.Table:
		t = &tv
	}
	if t == nil {
		return nil, fmt.Errorf("nil table")
	}

	headers := make([]columnHeader, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = columnHeader{Name: c.Name, Type: c.Type}
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(headers); err != nil {
		return nil, err
	}
	for _, c := range t.Columns {
		var err error
		switch c.Type {
		case domain.ColumnFloat:
			err = enc.Encode(c.Floats)
		case domain.ColumnInt:
			err = enc.Encode(c.Ints)
		case domain.ColumnString:
			err = enc.Encode(c.Strings)
		case domain.ColumnBool:
			err = enc.Encode(c.Bools)
		default:
			err = fmt.Errorf("column %q: unknown type %q", c.Name, c.Type)
		}
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (tableCodec) Decode(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))

	var headers []columnHeader
	if err := dec.Decode(&headers); err != nil {
		return nil, fmt.Errorf("table header: %w", err)
	}

	t := &domain.Table{Columns: make([]domain.Column, len(headers))}
	for i, h := range headers {
		col := domain.Column{Name: h.Name, Type: h.Type}
		var err error
		switch h.Type {
		case domain.ColumnFloat:
			err = dec.Decode(&col.Floats)
		case domain.ColumnInt:
			err = dec.Decode(&col.Ints)
		case domain.ColumnString:
			err = dec.Decode(&col.Strings)
		case domain.ColumnBool:
			err = dec.Decode(&col.Bools)
		default:
			err = fmt.Errorf("unknown type %q", h.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", h.Name, err)
		}
		t.Columns[i] = col
	}
	return t, nil
}

// numericCodec stores Series and Array payloads as msgpack float vectors.
type numericCodec struct{}

type numericWire struct {
	Kind  domain.PortKind `msgpack:"k"`
	Name  string          `msgpack:"n,omitempty"`
	Shape []int           `msgpack:"s,omitempty"`
	Data  []float64       `msgpack:"d"`
}

func (numericCodec) Name() string { return "numeric" }

func (numericCodec) Accepts(v any) bool {
	switch v.(type) {
	case *domain.Series, domain.Series, *domain.Array, domain.Array:
		return true
	}
	return false
}

func (numericCodec) Encode(v any) ([]byte, error) {
	var w numericWire
	switch tv := v.(type) {
	case *domain.Series:
		if tv == nil {
			return nil, fmt.Errorf("nil series")
		}
		w = numericWire{Kind: domain.PortSeries, Name: tv.Name, Data: tv.Values}
	case domain.Series:
		w = numericWire{Kind: domain.PortSeries, Name: tv.Name, Data: tv.Values}
	case *domain.Array:
		if tv == nil {
			return nil, fmt.Errorf("nil array")
		}
		w = numericWire{Kind: domain.PortArray, Shape: tv.Shape, Data: tv.Data}
	case domain.Array:
		w = numericWire{Kind: domain.PortArray, Shape: tv.Shape, Data: tv.Data}
	}
	return msgpack.Marshal(&w)
}

func (numericCodec) Decode(data []byte) (any, error) {
	var w numericWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Kind {
	case domain.PortSeries:
		return &domain.Series{Name: w.Name, Values: w.Data}, nil
	case domain.PortArray:
		return &domain.Array{Shape: w.Shape, Data: w.Data}, nil
	}
	return nil, fmt.Errorf("unknown numeric kind %q", w.Kind)
}

// blobCodec stores opaque payloads as: uvarint tag length | tag | bytes.
// It round-trips exactly.
type blobCodec struct{}

func (blobCodec) Name() string { return "blob" }

func (blobCodec) Accepts(v any) bool {
	switch v.(type) {
	case *domain.Blob, domain.Blob:
		return true
	}
	return false
}

func (blobCodec) Encode(v any) ([]byte, error) {
	var b domain.Blob
	switch tv := v.(type) {
	case *domain.Blob:
		if tv == nil {
			return nil, fmt.Errorf("nil blob")
		}
		b = *tv
	case domain.Blob:
		b = tv
	}
	out := make([]byte, 0, binary.MaxVarintLen64+len(b.Tag)+len(b.Data))
	out = binary.AppendUvarint(out, uint64(len(b.Tag)))
	out = append(out, b.Tag...)
	out = append(out, b.Data...)
	return out, nil
}

func (blobCodec) Decode(data []byte) (any, error) {
	n, read := binary.Uvarint(data)
	if read <= 0 || uint64(len(data)-read) < n {
		return nil, fmt.Errorf("truncated blob header")
	}
	rest := data[read:]
	return &domain.Blob{
		Tag:  string(rest[:n]),
		Data: append([]byte(nil), rest[n:]...),
	}, nil
}
