package engine

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/guileen/objectql/types"
)

// Mapper converts untyped rows into struct values. Fields map by the
// `objectql` struct tag when present, else by name (case-insensitive).
// Field tables are compiled once per struct type.
type Mapper struct {
	mu     sync.RWMutex
	tables map[reflect.Type]map[string]int
}

// NewMapper creates a mapper.
func NewMapper() *Mapper {
	return &Mapper{tables: make(map[reflect.Type]map[string]int)}
}

// MapRow populates dest (a pointer to struct) from a row.
func (m *Mapper) MapRow(row types.Row, dest interface{}) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("mapper requires a pointer to struct, got %T", dest)
	}
	elem := v.Elem()
	table := m.fieldTable(elem.Type())

	for key, value := range row {
		idx, ok := table[strings.ToLower(key)]
		if !ok || value == nil {
			continue
		}
		field := elem.Field(idx)
		if err := assign(field, value); err != nil {
			return fmt.Errorf("field %s: %w", elem.Type().Field(idx).Name, err)
		}
	}
	return nil
}

func (m *Mapper) fieldTable(t reflect.Type) map[string]int {
	m.mu.RLock()
	table, ok := m.tables[t]
	m.mu.RUnlock()
	if ok {
		return table
	}

	table = make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag := sf.Tag.Get("objectql"); tag != "" {
			if tag == "-" {
				continue
			}
			name = tag
		}
		table[strings.ToLower(name)] = i
	}

	m.mu.Lock()
	m.tables[t] = table
	m.mu.Unlock()
	return table
}

func assign(field reflect.Value, value interface{}) error {
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(field.Type()) {
		field.Set(v)
		return nil
	}
	if v.Type().ConvertibleTo(field.Type()) {
		field.Set(v.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// QueryTyped runs a query and maps each row into T.
func QueryTyped[T any](ctx context.Context, e *Engine, dsql string) ([]T, error) {
	rows, err := e.Query(ctx, dsql)
	if err != nil {
		return nil, err
	}

	mapper := NewMapper()
	out := make([]T, len(rows))
	for i, row := range rows {
		if err := mapper.MapRow(row, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
