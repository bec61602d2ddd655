package fieldcrypt

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	testCodecOnce sync.Once
	testCodec     *Codec
)

// newTestCodec はscryptの導出コストを避けるためテスト全体で1つのCodecを共有する。
func newTestCodec(t testing.TB) *Codec {
	t.Helper()
	testCodecOnce.Do(func() {
		km, err := NewKeyMaterial("test-passphrase-32-characters!!!", "test-salt-16+!")
		if err != nil {
			panic(err)
		}
		testCodec, err = NewCodec(km)
		if err != nil {
			panic(err)
		}
	})
	return testCodec
}

func TestNewKeyMaterial_RequiresPassphraseAndSalt(t *testing.T) {
	_, err := NewKeyMaterial("", "salt")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = NewKeyMaterial("passphrase", "")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}

func TestNewKeyMaterial_Deterministic(t *testing.T) {
	a, err := NewKeyMaterial("passphrase", "salt")
	require.NoError(t, err)
	b, err := NewKeyMaterial("passphrase", "salt")
	require.NoError(t, err)

	assert.Equal(t, a.key, b.key)
	assert.Len(t, a.key, keySize)
	assert.Equal(t, "aes-256-cbc", a.Algorithm())

	// 別インスタンスで暗号化した値を復号できる
	ca, err := NewCodec(a)
	require.NoError(t, err)
	cb, err := NewCodec(b)
	require.NoError(t, err)

	enc, err := ca.Encrypt("123-45-6789")
	require.NoError(t, err)
	dec, err := cb.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "123-45-6789", dec)
}

func TestCodec_EmptyValuesPassThrough(t *testing.T) {
	c := newTestCodec(t)

	enc, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, enc)

	dec, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, dec)
}

func TestCodec_StorageFormat(t *testing.T) {
	c := newTestCodec(t)

	enc, err := c.Encrypt("1985-02-14")
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], ivLength*2)
	assert.Zero(t, len(parts[1])%32, "ciphertext must be whole blocks")
}

func TestCodec_RoundTripProperty(t *testing.T) {
	c := newTestCodec(t)

	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.StringN(1, 256, -1).Draw(rt, "plaintext")

		first, err := c.Encrypt(s)
		require.NoError(rt, err)
		second, err := c.Encrypt(s)
		require.NoError(rt, err)

		assert.NotEqual(rt, first, second, "random iv must produce distinct ciphertexts")

		for _, enc := range []string{first, second} {
			dec, err := c.Decrypt(enc)
			require.NoError(rt, err)
			assert.Equal(rt, s, dec)
		}
	})
}

func TestCodec_HashProperty(t *testing.T) {
	c := newTestCodec(t)

	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "value")

		h := c.Hash(s)
		assert.Equal(rt, h, c.Hash(s))
		assert.Len(rt, h, 64)
	})
}

func TestCodec_HashDependsOnSalt(t *testing.T) {
	km, err := NewKeyMaterial("test-passphrase-32-characters!!!", "another-salt")
	require.NoError(t, err)
	other, err := NewCodec(km)
	require.NoError(t, err)

	assert.NotEqual(t, newTestCodec(t).Hash("CONF-0001"), other.Hash("CONF-0001"))
}

func TestCodec_DecryptMalformed(t *testing.T) {
	c := newTestCodec(t)
	validIV := strings.Repeat("ab", ivLength)

	tests := []struct {
		name  string
		value string
	}{
		{name: "missing separator", value: "deadbeef"},
		{name: "too many separators", value: validIV + ":00:11"},
		{name: "invalid iv hex", value: "zz" + validIV[2:] + ":" + strings.Repeat("00", 16)},
		{name: "short iv", value: "abcd:" + strings.Repeat("00", 16)},
		{name: "invalid ciphertext hex", value: validIV + ":xyz"},
		{name: "empty ciphertext", value: validIV + ":"},
		{name: "partial block", value: validIV + ":" + strings.Repeat("00", 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecryption))

			var decErr *DecryptionError
			require.ErrorAs(t, err, &decErr)
			assert.NotEmpty(t, decErr.Reason)
		})
	}
}

func TestDecryptionError_WithField(t *testing.T) {
	base := &DecryptionError{Reason: "invalid iv length 2"}
	withField := base.WithField("Employee", "ssn")

	assert.Empty(t, base.Entity)
	assert.Equal(t, "Employee", withField.Entity)
	assert.Equal(t, "decryption failed for Employee.ssn: invalid iv length 2", withField.Error())
	assert.ErrorIs(t, withField, ErrDecryption)
}
