package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testKey)
	require.NoError(t, err)
	return codec
}

func TestNewCodecRejectsBadKeys(t *testing.T) {
	_, err := NewCodec("too-short")
	assert.Error(t, err)

	_, err = NewCodec(strings.Repeat("0", 32)) // 16 bytes, not 32
	assert.Error(t, err)

	_, err = NewCodec(strings.Repeat("zz", 32)) // not hex
	assert.Error(t, err)

	_, err = NewCodec(testKey)
	assert.NoError(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	for _, plaintext := range []string{"", "p", "hunter2", "пароль", strings.Repeat("x", 4096)} {
		secret, err := codec.Encrypt(plaintext)
		require.NoError(t, err)
		assert.Len(t, strings.Split(secret, ":"), 3)

		got, err := codec.Decrypt(secret)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	codec := newTestCodec(t)

	a, err := codec.Encrypt("same input")
	require.NoError(t, err)
	b, err := codec.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsMalformedSecrets(t *testing.T) {
	codec := newTestCodec(t)

	for _, secret := range []string{
		"",
		"deadbeef",
		"aa:bb",
		"aa:bb:cc:dd",
		"nothex:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb:cc",
	} {
		_, err := codec.Decrypt(secret)
		assert.ErrorIs(t, err, ErrMalformedSecret, "secret %q", secret)
	}
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	codec := newTestCodec(t)

	secret, err := codec.Encrypt("sensitive")
	require.NoError(t, err)

	parts := strings.Split(secret, ":")
	require.Len(t, parts, 3)

	// Flip a nibble of the authentication tag.
	tag := []byte(parts[1])
	if tag[0] == '0' {
		tag[0] = '1'
	} else {
		tag[0] = '0'
	}
	tampered := parts[0] + ":" + string(tag) + ":" + parts[2]

	plaintext, err := codec.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrAuthenticationTag)
	assert.Empty(t, plaintext)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewCodec(strings.Repeat("ef", 32))
	require.NoError(t, err)

	secret, err := codec.Encrypt("sensitive")
	require.NoError(t, err)

	_, err = other.Decrypt(secret)
	assert.ErrorIs(t, err, ErrAuthenticationTag)
}
