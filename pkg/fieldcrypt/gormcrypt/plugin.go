// Package gormcrypt はfieldcryptのCodecとRegistryをgormのコールバックとして組み込む。
//
// バックエンドサービスは自身の*gorm.DBにPluginを登録するだけで、登録済みエンティティの
// 保護対象フィールドを平文のまま読み書きできる。
package gormcrypt

import (
	"errors"
	"log/slog"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"benefits-gateway/pkg/fieldcrypt"
)

const (
	pluginName        = "field_encryption"
	originalValuesKey = "field_encryption:originals"
)

// Metrics は復号失敗を記録する。
type Metrics interface {
	DecryptionFailed(entity, field string)
}

// Plugin は登録済みエンティティの保護対象フィールドを透過的に暗号化・復号するgormプラグイン。
//
// 書き込み（Create/Update/Save/Upsert）の直前に平文を暗号文へ置き換え、書き込み後に呼び出し元の値を平文へ戻す。
// 読み取り（First/Find）の直後に暗号文を復号する。復号に失敗した場合は *fieldcrypt.DecryptionError を
// クエリのエラーとして返し、そのレコードの処理を打ち切る。
//
// 保護対象フィールドはstring型である必要がある。Row/Scan/Pluckによる読み取りは対象外。
type Plugin struct {
	codec    *fieldcrypt.Codec
	registry *fieldcrypt.Registry
	metrics  Metrics
}

// New はPluginを生成する。metrics はnilでもよい。
func New(codec *fieldcrypt.Codec, registry *fieldcrypt.Registry, metrics Metrics) *Plugin {
	return &Plugin{codec: codec, registry: registry, metrics: metrics}
}

// Name はプラグイン名を返す。
func (p *Plugin) Name() string {
	return pluginName
}

// Initialize はコールバックを登録する。
func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").After("gorm:before_create").Register("field_encryption:encrypt_create", p.encrypt),
		cb.Create().After("gorm:create").Register("field_encryption:restore_create", p.restore),
		cb.Update().Before("gorm:update").After("gorm:before_update").Register("field_encryption:encrypt_update", p.encrypt),
		cb.Update().After("gorm:update").Register("field_encryption:restore_update", p.restore),
		cb.Query().After("gorm:query").Register("field_encryption:decrypt_query", p.decrypt),
	)
}

// writeState は書き込み後に平文へ戻すための値を保持する。
type writeState struct {
	fields    []originalValue
	mapValues []originalMapValue
}

type originalValue struct {
	target reflect.Value
	field  *schema.Field
	value  string
}

type originalMapValue struct {
	values map[string]interface{}
	key    string
	value  interface{}
}

// entityFields はステートメントの対象エンティティ名と、保護対象フィールドを返す。
func (p *Plugin) entityFields(db *gorm.DB) (string, []*schema.Field) {
	s := db.Statement.Schema
	if s == nil {
		return "", nil
	}
	entity := s.Name
	if e, ok := reflect.New(s.ModelType).Interface().(fieldcrypt.Entity); ok {
		entity = e.EntityType()
	}
	names := p.registry.Fields(entity)
	if len(names) == 0 {
		return entity, nil
	}
	fields := make([]*schema.Field, 0, len(names))
	for _, name := range names {
		if f := s.LookUpField(name); f != nil && f.FieldType.Kind() == reflect.String {
			fields = append(fields, f)
		}
	}
	return entity, fields
}

// records はReflectValueからモデル型のレコードを列挙する。
func records(db *gorm.DB) []reflect.Value {
	rv := reflect.Indirect(db.Statement.ReflectValue)
	modelType := db.Statement.Schema.ModelType

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]reflect.Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem := reflect.Indirect(rv.Index(i))
			if elem.IsValid() && elem.Type() == modelType {
				out = append(out, elem)
			}
		}
		return out
	case reflect.Struct:
		if rv.Type() == modelType {
			return []reflect.Value{rv}
		}
	}
	return nil
}

func (p *Plugin) encrypt(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	_, fields := p.entityFields(db)
	if len(fields) == 0 {
		return
	}
	ctx := db.Statement.Context
	state := &writeState{}
	db.InstanceSet(originalValuesKey, state)

	// Update/Updatesのmap引数。gormは更新値をModelにも反映するため、Model側も書き込み後に平文へ戻す
	if values, ok := db.Statement.Dest.(map[string]interface{}); ok {
		for key, v := range values {
			f := db.Statement.Schema.LookUpField(key)
			if f == nil || !containsField(fields, f) {
				continue
			}
			s, ok := v.(string)
			if !ok || s == "" {
				continue
			}
			enc, err := p.codec.Encrypt(s)
			if err != nil {
				db.AddError(err)
				return
			}
			state.mapValues = append(state.mapValues, originalMapValue{values: values, key: key, value: v})
			for _, rec := range records(db) {
				state.fields = append(state.fields, originalValue{target: rec, field: f, value: s})
			}
			values[key] = enc
		}
		return
	}

	// 値渡しの構造体はアドレスを取れないため、ポインタのコピーに置き換える
	if dv := reflect.ValueOf(db.Statement.Dest); dv.Kind() == reflect.Struct {
		copied := reflect.New(dv.Type())
		copied.Elem().Set(dv)
		db.Statement.Dest = copied.Interface()
		if rv := db.Statement.ReflectValue; rv.Kind() == reflect.Struct && !rv.CanAddr() {
			db.Statement.ReflectValue = copied.Elem()
		}
	}

	// Model(&a).Updates(&b) の場合、書き込まれるのはbの値で、aにはgormが値を反映する
	targets := records(db)
	var mirrors []reflect.Value
	if dest, ok := separateDest(db); ok {
		mirrors = targets
		targets = []reflect.Value{dest}
	}

	for _, rec := range targets {
		for _, f := range fields {
			v, zero := f.ValueOf(ctx, rec)
			if zero {
				continue
			}
			s := v.(string)
			enc, err := p.codec.Encrypt(s)
			if err != nil {
				db.AddError(err)
				return
			}
			if err := f.Set(ctx, rec, enc); err != nil {
				db.AddError(err)
				return
			}
			state.fields = append(state.fields, originalValue{target: rec, field: f, value: s})
			for _, m := range mirrors {
				state.fields = append(state.fields, originalValue{target: m, field: f, value: s})
			}
		}
	}
}

// separateDest はDestがReflectValueとは別のモデル型構造体を指している場合にそれを返す。
func separateDest(db *gorm.DB) (reflect.Value, bool) {
	dv := reflect.ValueOf(db.Statement.Dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return reflect.Value{}, false
	}
	dv = dv.Elem()
	if dv.Kind() != reflect.Struct || dv.Type() != db.Statement.Schema.ModelType {
		return reflect.Value{}, false
	}
	rv := db.Statement.ReflectValue
	if rv.Kind() == reflect.Struct && rv.CanAddr() && rv.Addr().Pointer() == dv.Addr().Pointer() {
		return reflect.Value{}, false
	}
	return dv, true
}

// restore は書き込み後に呼び出し元の値を平文に戻す。書き込みが失敗した場合も実行する。
func (p *Plugin) restore(db *gorm.DB) {
	v, ok := db.InstanceGet(originalValuesKey)
	if !ok {
		return
	}
	state, ok := v.(*writeState)
	if !ok {
		return
	}
	ctx := db.Statement.Context
	for _, o := range state.fields {
		if err := o.field.Set(ctx, o.target, o.value); err != nil {
			db.AddError(err)
		}
	}
	for _, o := range state.mapValues {
		o.values[o.key] = o.value
	}
}

func (p *Plugin) decrypt(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	entity, fields := p.entityFields(db)
	if len(fields) == 0 {
		return
	}
	ctx := db.Statement.Context

	for _, rec := range records(db) {
		for _, f := range fields {
			v, zero := f.ValueOf(ctx, rec)
			if zero {
				continue
			}
			plain, err := p.codec.Decrypt(v.(string))
			if err != nil {
				var decErr *fieldcrypt.DecryptionError
				if errors.As(err, &decErr) {
					err = decErr.WithField(entity, f.DBName)
				}
				slog.ErrorContext(ctx, "Failed to decrypt field",
					"entity", entity,
					"field", f.DBName,
					"error", err,
				)
				if p.metrics != nil {
					p.metrics.DecryptionFailed(entity, f.DBName)
				}
				db.AddError(err)
				return
			}
			if err := f.Set(ctx, rec, plain); err != nil {
				db.AddError(err)
				return
			}
		}
	}
}

func containsField(fields []*schema.Field, target *schema.Field) bool {
	for _, f := range fields {
		if f == target {
			return true
		}
	}
	return false
}
