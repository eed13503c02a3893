package cachecore

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/blueberrycongee/aicore/internal/coretypes"
)

// CacheKey is an opaque deterministic fingerprint.
type CacheKey string

// KeyPrefix is reserved namespace for cache keys built by this facade;
// operators must not write keys under this prefix by other means.
const KeyPrefix = "v1|"

// BuildKey computes the deterministic cache key for a request per spec
// §4.2: op_tag | text_fp | opts_fp | q_fp. Options are canonicalized by
// sorting their keys before hashing, so key order never affects the
// result regardless of map iteration or caller insertion order.
func BuildKey(op coretypes.Operation, text string, options map[string]any, question string, textHashThreshold int) CacheKey {
	opTag := op.Tag()

	textFP := text
	if len(text) > textHashThreshold {
		sum := sha256.Sum256([]byte(text))
		textFP = hex.EncodeToString(sum[:])[:32]
	}

	optsCanonical := canonicalOptionsJSON(options)
	optsSum := sha256.Sum256(optsCanonical)
	optsFP := hex.EncodeToString(optsSum[:])[:16]

	qFP := ""
	if op == coretypes.QA && question != "" {
		qSum := sha256.Sum256([]byte(question))
		qFP = hex.EncodeToString(qSum[:])[:16]
	}

	return CacheKey(KeyPrefix + strings.Join([]string{opTag, textFP, optsFP, qFP}, "|"))
}

// canonicalOptionsJSON renders options as JSON with keys in sorted order,
// so insertion order of the source map never affects the byte sequence
// that gets hashed.
func canonicalOptionsJSON(options map[string]any) []byte {
	if len(options) == 0 {
		return []byte("{}")
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(options[k])
		if err != nil {
			vb, _ = json.Marshal(nil)
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String())
}
