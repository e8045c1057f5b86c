package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns extracts all column names from struct "db" tags, descending
// into embedded structs. Repositories call it once at construction.
//
// Usage:
//
//	columns := ExtractDBColumns[inventory.Batch]()
//	// Returns: ["id", "product_id", "full_container_quantity", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := metadataFor(reflect.TypeOf(zero))
	return meta.columns
}

type fieldInfo struct {
	index []int
	dbTag string
}

type typeMetadata struct {
	fields  []fieldInfo
	columns []string
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

// metadataFor returns the cached column layout of t.
func metadataFor(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, meta)
	}
	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

func collectFields(t reflect.Type, prefix []int, meta *typeMetadata) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				continue
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, index, meta)
			}
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.fields = append(meta.fields, fieldInfo{index: index, dbTag: tag})
		meta.columns = append(meta.columns, tag)
	}
}

// StructToMap converts a struct to a column map using "db" tags.
// Fields without a tag or tagged "-" are left out.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metadataFor(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, fi := range meta.fields {
		res[fi.dbTag] = rv.FieldByIndex(fi.index).Interface()
	}
	return res
}

// StructValues returns the values of columns from v in the given order,
// ready for a COPY row.
func StructValues(v any, columns []string) []any {
	m := StructToMap(v)
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = m[c]
	}
	return row
}
