// Package dbtypes holds column types gorm cannot map on its own.
package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// UUIDArray maps a Postgres uuid[] column. Other dialects store the array
// literal as text.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	elems, err := elements("UUIDArray", src)
	if err != nil {
		return err
	}
	ids := make(UUIDArray, 0, len(elems))
	for _, e := range elems {
		id, err := uuid.Parse(e)
		if err != nil {
			return fmt.Errorf("UUIDArray: element %q: %w", e, err)
		}
		ids = append(ids, id)
	}
	*a = ids
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	parts := make([]string, len(a))
	for i, id := range a {
		parts[i] = id.String()
	}
	return literal(parts, false), nil
}

func (UUIDArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return columnType(db, "uuid[]")
}

func (a UUIDArray) Contains(id uuid.UUID) bool { return slices.Contains(a, id) }

// StringArray maps a Postgres text[] column. Elements must not contain
// commas, quotes or braces.
type StringArray []string

func (a *StringArray) Scan(src any) error {
	elems, err := elements("StringArray", src)
	if err != nil {
		return err
	}
	*a = StringArray(elems)
	return nil
}

func (a StringArray) Value() (driver.Value, error) {
	return literal(a, true), nil
}

func (StringArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return columnType(db, "text[]")
}

// ContainsFold reports whether value is present, ignoring case.
func (a StringArray) ContainsFold(value string) bool {
	return slices.ContainsFunc(a, func(s string) bool { return strings.EqualFold(s, value) })
}

func columnType(db *gorm.DB, postgres string) string {
	if db.Dialector.Name() == "postgres" {
		return postgres
	}
	return "text"
}

// elements splits a {a,"b",c} literal. NULL scans as an empty array.
func elements(typ string, src any) ([]string, error) {
	var raw string
	switch v := src.(type) {
	case nil:
		return []string{}, nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return nil, fmt.Errorf("%s: cannot scan %T", typ, src)
	}
	body := strings.TrimSpace(raw)
	body = strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}")
	out := []string{}
	for part := range strings.SplitSeq(body, ",") {
		if e := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `"`)); e != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

func literal(elems []string, quote bool) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		if quote {
			b.WriteString(`"` + e + `"`)
			continue
		}
		b.WriteString(e)
	}
	b.WriteByte('}')
	return b.String()
}
