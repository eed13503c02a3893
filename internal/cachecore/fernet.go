package cachecore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// fernetVersion is the only token version this implementation produces or
// accepts, matching the cryptography.fernet.Fernet wire format: version (1)
// + timestamp (8, big-endian seconds) + IV (16) + AES-128-CBC ciphertext +
// HMAC-SHA256 (32), the whole thing urlsafe-base64 encoded.
const fernetVersion = 0x80

var (
	errFernetKeyLength = fmt.Errorf("cachecore: fernet key must decode to 32 bytes")
	errFernetMalformed = fmt.Errorf("cachecore: fernet token malformed")
	errFernetBadMAC    = fmt.Errorf("cachecore: fernet token signature mismatch")
)

// fernetKey holds the split signing/encryption halves of a decoded Fernet
// key, per the Fernet spec (first 16 bytes sign, last 16 bytes encrypt).
type fernetKey struct {
	signingKey    [16]byte
	encryptionKey [16]byte
}

// ParseFernetKey decodes a urlsafe-base64 32-byte Fernet key.
func ParseFernetKey(encoded string) (*fernetKey, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("cachecore: decode fernet key: %w", err)
	}
	if len(raw) != 32 {
		return nil, errFernetKeyLength
	}
	var fk fernetKey
	copy(fk.signingKey[:], raw[:16])
	copy(fk.encryptionKey[:], raw[16:])
	return &fk, nil
}

// GenerateFernetKey creates a new random key, returned urlsafe-base64
// encoded, suitable for REDIS_ENCRYPTION_KEY.
func GenerateFernetKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("cachecore: generate fernet key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errFernetMalformed
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errFernetMalformed
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errFernetMalformed
		}
	}
	return data[:len(data)-padLen], nil
}

// fernetEncrypt produces a Fernet token for plaintext under key.
func fernetEncrypt(key *fernetKey, plaintext []byte) ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("cachecore: generate iv: %w", err)
	}

	block, err := aes.NewCipher(key.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("cachecore: aes cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	header := make([]byte, 9)
	header[0] = fernetVersion
	binary.BigEndian.PutUint64(header[1:], uint64(time.Now().Unix()))

	signed := make([]byte, 0, len(header)+len(iv)+len(ciphertext))
	signed = append(signed, header...)
	signed = append(signed, iv...)
	signed = append(signed, ciphertext...)

	mac := hmac.New(sha256.New, key.signingKey[:])
	mac.Write(signed)
	tag := mac.Sum(nil)

	token := append(signed, tag...)
	out := make([]byte, base64.URLEncoding.EncodedLen(len(token)))
	base64.URLEncoding.Encode(out, token)
	return out, nil
}

// fernetDecrypt validates and decrypts a Fernet token. TTL is not enforced:
// cache expiry is governed by the wire-format entry's own expires_at, not
// the Fernet token's embedded timestamp.
func fernetDecrypt(key *fernetKey, token []byte) ([]byte, error) {
	raw := make([]byte, base64.URLEncoding.DecodedLen(len(token)))
	n, err := base64.URLEncoding.Decode(raw, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFernetMalformed, err)
	}
	raw = raw[:n]

	if len(raw) < 9+aes.BlockSize+32 {
		return nil, errFernetMalformed
	}
	if raw[0] != fernetVersion {
		return nil, errFernetMalformed
	}

	macStart := len(raw) - 32
	signed := raw[:macStart]
	gotTag := raw[macStart:]

	mac := hmac.New(sha256.New, key.signingKey[:])
	mac.Write(signed)
	wantTag := mac.Sum(nil)
	if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
		return nil, errFernetBadMAC
	}

	iv := raw[9 : 9+aes.BlockSize]
	ciphertext := raw[9+aes.BlockSize : macStart]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errFernetMalformed
	}

	block, err := aes.NewCipher(key.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("cachecore: aes cipher: %w", err)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}
