package vault

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T, passphrase string) *Cipher {
	t.Helper()
	salt := bytes.Repeat([]byte{7}, SaltSize)
	c, err := New(passphrase, salt, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t, "correct horse")

	for _, plain := range []string{"", "hunter2", "ünïcødé ✓", strings.Repeat("x", 4096)} {
		ct, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, ct)
		assert.Equal(t, plain, c.Decrypt(ct))
	}
}

func TestCipher_FreshNonce(t *testing.T) {
	c := newTestCipher(t, "correct horse")

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encryptions of the same plaintext must differ")
}

func TestCipher_CiphertextLength(t *testing.T) {
	c := newTestCipher(t, "correct horse")

	ct, err := c.Encrypt("a")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(ct), 20, "even tiny plaintexts produce long ciphertext")
}

func TestCipher_DecryptFallsBackToCiphertext(t *testing.T) {
	var logs bytes.Buffer
	salt := bytes.Repeat([]byte{7}, SaltSize)
	right, err := New("right", salt, log.New(&logs, "", 0))
	require.NoError(t, err)
	wrong := newTestCipher(t, "wrong")

	ct, err := wrong.Encrypt("secret")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
	}{
		{name: "wrong key", in: ct},
		{name: "not base64", in: "plain text password"},
		{name: "too short", in: "AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, right.Decrypt(tt.in))
		})
	}
	assert.Contains(t, logs.String(), "decrypt failed")
}

func TestNew_Errors(t *testing.T) {
	_, err := New("", bytes.Repeat([]byte{1}, SaltSize), nil)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = New("pw", []byte{1, 2}, nil)
	assert.Error(t, err)
}

func TestLoadOrCreateSalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SaltFileName)

	first, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Len(t, first, SaltSize)

	second, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Equal(t, first, second, "salt must be stable across loads")
}

func TestGeneratePassword(t *testing.T) {
	pw, err := GeneratePassword(DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Len(t, pw, 16)

	digits, err := GeneratePassword(GenerateOptions{Length: 64, Numbers: true})
	require.NoError(t, err)
	for _, r := range digits {
		assert.True(t, r >= '0' && r <= '9', "unexpected rune %q", r)
	}

	fallback, err := GeneratePassword(GenerateOptions{Length: 32})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(fallback), fallback)

	_, err = GeneratePassword(GenerateOptions{Length: 0})
	assert.Error(t, err)
}
