package postgres

import (
	"reflect"
	"slices"
)

// ImmutableColumns never change after insert.
var ImmutableColumns = []string{"id", "number", "organization_id", "created_at", "created_by", "version"}

// Columns maps the db-tagged fields of T to column names in declaration
// order. Fields of embedded structs (entity.BaseEntity) are promoted in place.
// Build one per table at package init and share it.
type Columns[T any] struct {
	names []string
	index [][]int
}

// ColumnsOf reads the db tags of T. Fields tagged "-" or untagged are skipped.
func ColumnsOf[T any]() *Columns[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	c := &Columns[T]{}
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		c.names = append(c.names, tag)
		c.index = append(c.index, f.Index)
	}
	return c
}

// Names returns the column names. The slice must not be modified.
func (c *Columns[T]) Names() []string {
	return c.names
}

// Except returns the columns without names.
func (c *Columns[T]) Except(names ...string) *Columns[T] {
	out := &Columns[T]{}
	for i, n := range c.names {
		if slices.Contains(names, n) {
			continue
		}
		out.names = append(out.names, n)
		out.index = append(out.index, c.index[i])
	}
	return out
}

// Values returns the field values of v in Names order.
func (c *Columns[T]) Values(v *T) []any {
	rv := reflect.ValueOf(v).Elem()
	out := make([]any, len(c.index))
	for i, idx := range c.index {
		out[i] = rv.FieldByIndex(idx).Interface()
	}
	return out
}

// Map returns the field values of v keyed by column, for squirrel SetMap.
func (c *Columns[T]) Map(v *T) map[string]any {
	values := c.Values(v)
	out := make(map[string]any, len(values))
	for i, n := range c.names {
		out[n] = values[i]
	}
	return out
}
