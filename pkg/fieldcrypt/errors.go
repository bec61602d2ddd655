package fieldcrypt

import (
	"errors"
	"fmt"
)

// ErrDecryption は保存済みの暗号文が不正で復号できない場合のエラー。
var ErrDecryption = errors.New("decryption failed")

// DecryptionError は復号失敗の詳細を表す。
// Entity と Field はデータアクセス層で設定される（Codec単体では空）。
type DecryptionError struct {
	Entity string
	Field  string
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	msg := "decryption failed"
	if e.Entity != "" {
		msg += fmt.Sprintf(" for %s.%s", e.Entity, e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is は errors.Is(err, ErrDecryption) を満たすようにする。
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// WithField はエンティティとフィールド名を付与したコピーを返す。
func (e *DecryptionError) WithField(entity, field string) *DecryptionError {
	c := *e
	c.Entity = entity
	c.Field = field
	return &c
}
