package fieldcrypt

import "sort"

// Entity はエンティティ種別名を返すモデルが実装するインターフェース。
type Entity interface {
	EntityType() string
}

// Registry はエンティティ種別ごとに保護対象のフィールド名を保持する。
// 起動後は読み取り専用のため、ロックなしで共有できる。
type Registry struct {
	fields map[string][]string
}

// NewRegistry はエンティティ種別→フィールド名の対応からRegistryを生成する。
func NewRegistry(entries map[string][]string) *Registry {
	fields := make(map[string][]string, len(entries))
	for entity, names := range entries {
		fields[entity] = append([]string(nil), names...)
	}
	return &Registry{fields: fields}
}

// DefaultRegistry は福利厚生ドメインの既定の保護対象フィールドを返す。
func DefaultRegistry() *Registry {
	return NewRegistry(map[string][]string{
		"Employee":   {"ssn", "dob", "address", "phone"},
		"Dependent":  {"ssn", "dob"},
		"Enrollment": {"confirmation"},
	})
}

// Fields は指定エンティティの保護対象フィールドを返す。未登録の場合はnil。
func (r *Registry) Fields(entity string) []string {
	return r.fields[entity]
}

// IsRegistered はエンティティが登録済みかを返す。
func (r *Registry) IsRegistered(entity string) bool {
	_, ok := r.fields[entity]
	return ok
}

// Entities は登録済みエンティティ名をソートして返す。
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
