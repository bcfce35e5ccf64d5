package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
	"strconv"
)

// fingerprintVersion is mixed into every fingerprint; bump it when the
// derivation or the entry format changes so old entries are never reused.
const fingerprintVersion = "weft/fp/v1"

// Upstream identifies one wired input by its producer's fingerprint.
type Upstream struct {
	TargetPort  string
	SourcePort  string
	Fingerprint string
}

// FingerprintInput holds everything a node's result is allowed to depend on.
// Upstream payload bytes are never hashed; producers are identified by their own fingerprints.
type FingerprintInput struct {
	Type     string
	Params   map[string]any
	Seed     int64
	Upstream []Upstream
}

// Fingerprint derives the content-addressed cache key of a node invocation.
//
// The digest is computed over length-prefixed fields in a fixed order:
//  1. Format version
//  2. Node type id
//  3. Canonical JSON of the resolved params (keys sorted)
//  4. Global seed
//  5. For each upstream (sorted by target port): target port, source port, fingerprint
//
// Parameter maps that differ only in key order, or numbers that differ only in
// Go type (10 vs 10.0), produce the same fingerprint.
func Fingerprint(in FingerprintInput) (string, error) {
	resolved := in.Params
	if resolved == nil {
		resolved = map[string]any{}
	}
	params, err := CanonicalJSON(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize params: %w", err)
	}

	h := sha256.New()
	writeField(h, []byte(fingerprintVersion))
	writeField(h, []byte(in.Type))
	writeField(h, params)
	writeField(h, []byte(strconv.FormatInt(in.Seed, 10)))

	ups := make([]Upstream, len(in.Upstream))
	copy(ups, in.Upstream)
	sort.Slice(ups, func(i, j int) bool { return ups[i].TargetPort < ups[j].TargetPort })

	writeCount(h, len(ups))
	for _, u := range ups {
		writeField(h, []byte(u.TargetPort))
		writeField(h, []byte(u.SourcePort))
		writeField(h, []byte(u.Fingerprint))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// OutputDigest fingerprints the content of a set of outputs.
// Nodes that are never cached publish it to their descendants, so a descendant is
// only reused when the recomputed outputs are byte-identical.
func OutputDigest(outputs map[string]any) (string, error) {
	ports := make([]string, 0, len(outputs))
	for p := range outputs {
		ports = append(ports, p)
	}
	sort.Strings(ports)

	h := sha256.New()
	writeField(h, []byte("weft/out/v1"))
	writeCount(h, len(ports))
	for _, p := range ports {
		codec, data, err := encodePayload(outputs[p])
		if err != nil {
			return "", fmt.Errorf("output %q: %w", p, err)
		}
		writeField(h, []byte(p))
		writeField(h, []byte(codec))
		writeField(h, data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalJSON encodes v with map keys sorted at every level.
// encoding/json already sorts map keys; values are round-tripped through a
// generic decode so struct and map forms of the same data agree.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func writeField(h hash.Hash, data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	h.Write(prefix[:])
	h.Write(data)
}

func writeCount(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	writeField(h, buf[:])
}
