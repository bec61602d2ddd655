// Package fieldcrypt は規制対象フィールド（PII/PHI）の暗号化・復号・検索用ハッシュを提供する。
//
// 保存形式は `<hex IV>:<hex ciphertext>` で固定されており、既存データとの互換性を保つため変更してはならない。
package fieldcrypt

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	// Algorithm は暗号アルゴリズムの識別子。
	Algorithm = "aes-256-cbc"

	keySize = 32

	// scryptのパラメータ。既存の暗号文を読めるよう固定値とする。
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// ErrEmptyPassphrase はパスフレーズまたはソルトが空の場合のエラー。
var ErrEmptyPassphrase = errors.New("encryption passphrase and salt are required")

// KeyMaterial はパスフレーズとソルトから導出した対称鍵を表す。
// プロセス起動時に一度だけ生成し、以降は読み取り専用で共有する。
type KeyMaterial struct {
	key  []byte
	salt string
}

// NewKeyMaterial はscryptで鍵を導出してKeyMaterialを生成する。
// 同じ(passphrase, salt)からは常に同じ鍵が得られる。
func NewKeyMaterial(passphrase, salt string) (*KeyMaterial, error) {
	if passphrase == "" || salt == "" {
		return nil, ErrEmptyPassphrase
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(salt), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return &KeyMaterial{key: key, salt: salt}, nil
}

// Algorithm はアルゴリズム識別子を返す。
func (k *KeyMaterial) Algorithm() string {
	return Algorithm
}
