package fieldcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	ivLength  = aes.BlockSize
	separator = ":"
)

// Codec は個々の文字列値を暗号化・復号する。
// KeyMaterialは読み取り専用のため、Codecは複数goroutineから同時に利用できる。
type Codec struct {
	block cipher.Block
	salt  string
}

// NewCodec はKeyMaterialからCodecを生成する。
func NewCodec(km *KeyMaterial) (*Codec, error) {
	if km == nil {
		return nil, errors.New("key material is required")
	}
	block, err := aes.NewCipher(km.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &Codec{block: block, salt: km.salt}, nil
}

// Encrypt は平文を暗号化して `<hex IV>:<hex ciphertext>` を返す。
// 空文字列は値の欠如として扱い、暗号化せずに空文字列を返す。
// IVは呼び出しごとにランダムに生成されるため、同じ平文でも結果は毎回異なる。
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + separator + hex.EncodeToString(ciphertext), nil
}

// Decrypt は Encrypt の逆変換を行う。空文字列は空文字列を返す。
// 形式が不正な値（区切り文字の数、hex、IV長、パディング）は *DecryptionError を返す。
func (c *Codec) Decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}

	parts := strings.Split(value, separator)
	if len(parts) != 2 {
		return "", &DecryptionError{Reason: fmt.Sprintf("expected 2 segments, got %d", len(parts))}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", &DecryptionError{Reason: "invalid iv encoding", Err: err}
	}
	if len(iv) != ivLength {
		return "", &DecryptionError{Reason: fmt.Sprintf("invalid iv length %d", len(iv))}
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", &DecryptionError{Reason: "invalid ciphertext encoding", Err: err}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", &DecryptionError{Reason: fmt.Sprintf("invalid ciphertext length %d", len(ciphertext))}
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid padding", Err: err}
	}
	return string(unpadded), nil
}

// Hash は平文とソルトを連結したSHA-256ダイジェスト（hex、64文字）を返す。
// 復号せずに等価検索が必要な値（確認番号など）に使用する。
func (c *Codec) Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext + c.salt))
	return hex.EncodeToString(sum[:])
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid block alignment")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding size")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return b[:len(b)-n], nil
}
