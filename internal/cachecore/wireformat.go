package cachecore

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	flagCompressed byte = 1 << 0
	flagEncrypted  byte = 1 << 1
)

// encodeEntry builds the on-wire blob for a cache value: one flags byte,
// a big-endian 4-byte length prefix, then the payload. Payload is JSON,
// optionally zlib-compressed, optionally Fernet-wrapped, in that order.
func (c *Facade) encodeEntry(jsonPayload []byte) (blob []byte, compressed, encrypted bool, err error) {
	payload := jsonPayload

	if c.compressionLevel > 0 && len(payload) >= c.compressionThreshold {
		var buf bytes.Buffer
		w, werr := zlib.NewWriterLevel(&buf, c.compressionLevel)
		if werr != nil {
			return nil, false, false, fmt.Errorf("cachecore: zlib writer: %w", werr)
		}
		if _, werr = w.Write(payload); werr != nil {
			return nil, false, false, fmt.Errorf("cachecore: zlib write: %w", werr)
		}
		if werr = w.Close(); werr != nil {
			return nil, false, false, fmt.Errorf("cachecore: zlib close: %w", werr)
		}
		payload = buf.Bytes()
		compressed = true
	}

	if c.fernetKey != nil {
		token, eerr := fernetEncrypt(c.fernetKey, payload)
		if eerr != nil {
			return nil, compressed, false, fmt.Errorf("cachecore: encrypt: %w", eerr)
		}
		payload = token
		encrypted = true
	}

	var flags byte
	if compressed {
		flags |= flagCompressed
	}
	if encrypted {
		flags |= flagEncrypted
	}

	out := make([]byte, 1+4+len(payload))
	out[0] = flags
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[5:], payload)
	return out, compressed, encrypted, nil
}

// decodeEntry reverses encodeEntry: un-Fernet, then un-zlib, yielding the
// original JSON payload. Returns ok=false (not an error) when decryption
// fails while encryption is enabled, per the backward-compatibility rule
// for migrating from unencrypted blobs.
func (c *Facade) decodeEntry(blob []byte) (payload []byte, ok bool, err error) {
	if len(blob) < 5 {
		return nil, false, fmt.Errorf("cachecore: truncated entry header")
	}
	flags := blob[0]
	length := binary.BigEndian.Uint32(blob[1:5])
	if int(length) != len(blob)-5 {
		return nil, false, fmt.Errorf("cachecore: length mismatch in entry header")
	}
	payload = blob[5:]

	if flags&flagEncrypted != 0 {
		if c.fernetKey == nil {
			return nil, false, fmt.Errorf("cachecore: entry is encrypted but no key configured")
		}
		decrypted, derr := fernetDecrypt(c.fernetKey, payload)
		if derr != nil {
			return nil, false, nil
		}
		payload = decrypted
	}

	if flags&flagCompressed != 0 {
		r, rerr := zlib.NewReader(bytes.NewReader(payload))
		if rerr != nil {
			return nil, false, fmt.Errorf("cachecore: zlib reader: %w", rerr)
		}
		defer r.Close()
		decompressed, rerr := io.ReadAll(r)
		if rerr != nil {
			return nil, false, fmt.Errorf("cachecore: zlib read: %w", rerr)
		}
		payload = decompressed
	}

	return payload, true, nil
}
