package cachecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFernetRoundTrip(t *testing.T) {
	keyStr, err := GenerateFernetKey()
	require.NoError(t, err)

	key, err := ParseFernetKey(keyStr)
	require.NoError(t, err)

	plaintext := []byte(`{"hello":"world"}`)
	token, err := fernetEncrypt(key, plaintext)
	require.NoError(t, err)

	assert.NotContains(t, string(token), "hello")

	decrypted, err := fernetDecrypt(key, token)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestFernetRejectsTamperedToken(t *testing.T) {
	keyStr, _ := GenerateFernetKey()
	key, _ := ParseFernetKey(keyStr)

	token, err := fernetEncrypt(key, []byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte{}, token...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = fernetDecrypt(key, tampered)
	assert.Error(t, err)
}

func TestFernetRejectsWrongKey(t *testing.T) {
	keyStr1, _ := GenerateFernetKey()
	key1, _ := ParseFernetKey(keyStr1)
	keyStr2, _ := GenerateFernetKey()
	key2, _ := ParseFernetKey(keyStr2)

	token, err := fernetEncrypt(key1, []byte("payload"))
	require.NoError(t, err)

	_, err = fernetDecrypt(key2, token)
	assert.Error(t, err)
}

func TestParseFernetKeyRejectsWrongLength(t *testing.T) {
	_, err := ParseFernetKey("dG9vc2hvcnQ=")
	assert.Error(t, err)
}
