package infra

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// NewBadgerDB は監査ログのローカル保存用にbadgerを開く。dir が空の場合はインメモリで開く。
func NewBadgerDB(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	// 監査ログは追記のみで値が小さいため、メモリ使用量を抑える
	opts = opts.
		WithLogger(nil).
		WithSyncWrites(true).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(16 << 20).
		WithIndexCacheSize(8 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}
	return db, nil
}
