// Package cache stores canonical response payloads keyed by a fingerprint
// of the request.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// fingerprintDomain separates cache keys from any other SHA-256 use.
// The version suffix allows a future change of the canonical form.
const fingerprintDomain = "apien/cache/v1"

// Fingerprint identifies a logical request. It is the primary key of a
// cache entry.
type Fingerprint [sha256.Size]byte

// Bytes returns the fingerprint as a byte slice.
func (f Fingerprint) Bytes() []byte {
	return f[:]
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Compute derives the fingerprint of a request's filters and options.
// The result does not depend on map iteration order or on the order of
// values within a filter.
func Compute(filters map[string][]string, options map[string]string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	h.Write(Canonical(filters, options))

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// Canonical returns the canonical JSON that Compute hashes:
// {"filters":{...},"options":{...}} with keys sorted at every level, each
// value list sorted and no HTML escaping.
func Canonical(filters map[string][]string, options map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"filters":{`)
	for i, k := range sortedKeys(filters) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, k)
		buf.WriteString(":[")
		values := append([]string(nil), filters[k]...)
		sort.Strings(values)
		for j, v := range values {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeString(&buf, v)
		}
		buf.WriteByte(']')
	}
	buf.WriteString(`},"options":{`)
	for i, k := range sortedKeys(options) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, k)
		buf.WriteByte(':')
		writeString(&buf, options[k])
	}
	buf.WriteString("}}")
	return buf.Bytes()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeString appends s as a JSON string literal. Encoding a string cannot
// fail.
func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1)
}
