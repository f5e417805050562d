package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldCipher_RoundTrip(t *testing.T) {
	cipher, err := NewFieldCipher(make([]byte, 32))
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hunter2", "pässwörd with ünicode", "a very long password that exceeds a single block of AES easily"} {
		sealed, err := cipher.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, sealed)

		opened, err := cipher.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestFieldCipher_NonceUniqueness(t *testing.T) {
	cipher, err := NewFieldCipher(make([]byte, 32))
	require.NoError(t, err)

	a, err := cipher.Encrypt("same input")
	require.NoError(t, err)
	b, err := cipher.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFieldCipher_BadKeyAndCiphertext(t *testing.T) {
	_, err := NewFieldCipher(make([]byte, 16))
	assert.Error(t, err)

	cipher, err := NewFieldCipher(make([]byte, 32))
	require.NoError(t, err)

	_, err = cipher.Decrypt("not base64 at all!!!")
	assert.Error(t, err)
	_, err = cipher.Decrypt("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.Error(t, err)

	// Ciphertext from one key does not open with another.
	otherKey := make([]byte, 32)
	otherKey[0] = 1
	other, err := NewFieldCipher(otherKey)
	require.NoError(t, err)

	sealed, err := cipher.Encrypt("secret")
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)
}
