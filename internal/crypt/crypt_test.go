package crypt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte(`{"title":"Midterm","questions":[{"text":"2+2?","options":["3","4"]}]}`)

	blob, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.Equal(t, BlobV1, blob.Version)
	assert.NotEqual(t, plaintext, blob.Ciphertext)

	got, err := Decrypt(blob, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)

	blob, err := Encrypt([]byte("confidential answer key"), k1)
	require.NoError(t, err)

	got, err := Decrypt(blob, k2)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	blob, err := Encrypt([]byte("original"), key)
	require.NoError(t, err)

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		tampered := *blob
		tampered.Ciphertext = append([]byte(nil), blob.Ciphertext...)
		tampered.Ciphertext[0] ^= 0xFF
		_, err := Decrypt(&tampered, key)
		assert.ErrorIs(t, err, ErrDecryption)
	})

	t.Run("flipped tag bit", func(t *testing.T) {
		tampered := *blob
		tampered.Tag = append([]byte(nil), blob.Tag...)
		tampered.Tag[0] ^= 0xFF
		_, err := Decrypt(&tampered, key)
		assert.ErrorIs(t, err, ErrDecryption)
	})
}

func TestDecryptRejectsMalformedBlob(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	valid, err := Encrypt([]byte("x"), key)
	require.NoError(t, err)

	cases := []struct {
		name string
		blob *EncryptedBlob
	}{
		{"nil blob", nil},
		{"unknown version", &EncryptedBlob{Version: "v0.legacy", Nonce: valid.Nonce, Ciphertext: valid.Ciphertext, Tag: valid.Tag}},
		{"short nonce", &EncryptedBlob{Version: BlobV1, Nonce: valid.Nonce[:4], Ciphertext: valid.Ciphertext, Tag: valid.Tag}},
		{"short tag", &EncryptedBlob{Version: BlobV1, Nonce: valid.Nonce, Ciphertext: valid.Ciphertext, Tag: valid.Tag[:8]}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decrypt(tc.blob, key)
			assert.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("x"), Key("too-short"))
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	b1, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	b2, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, b1.Nonce, b2.Nonce)
	assert.NotEqual(t, b1.Ciphertext, b2.Ciphertext)
}

func TestKeyHexRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	decoded, err := KeyFromHex(key.Hex())
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = KeyFromHex("not-hex")
	assert.Error(t, err)
	_, err = KeyFromHex("abcd")
	assert.Error(t, err)
}

func TestBlobJSONRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	blob, err := Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	raw, err := json.Marshal(blob)
	require.NoError(t, err)

	var restored EncryptedBlob
	require.NoError(t, json.Unmarshal(raw, &restored))

	got, err := Decrypt(&restored, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}
