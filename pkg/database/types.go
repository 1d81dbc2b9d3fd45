package database

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// StringArray is a list of ids kept in one text column as a JSON array.
// Rows migrated from a Postgres array column ({a,"b c"}) are read too.
type StringArray []string

// Contains reports whether s is an element of a.
func (a StringArray) Contains(s string) bool {
	return slices.Contains(a, s)
}

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("database: cannot scan %T into StringArray", value)
	}

	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0:
		*a = StringArray{}
	case raw[0] == '[':
		return json.Unmarshal(raw, (*[]string)(a))
	case raw[0] == '{' && raw[len(raw)-1] == '}':
		*a = splitArrayLiteral(string(raw[1 : len(raw)-1]))
	default:
		*a = StringArray{string(raw)}
	}
	return nil
}

// splitArrayLiteral splits the body of a Postgres array literal. Quotes
// group, backslash escapes.
func splitArrayLiteral(body string) StringArray {
	out := StringArray{}
	if body == "" {
		return out
	}

	var (
		elem    []rune
		quoted  bool
		escaped bool
	)
	for _, r := range body {
		switch {
		case escaped:
			elem = append(elem, r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			out = append(out, string(elem))
			elem = elem[:0]
		default:
			elem = append(elem, r)
		}
	}
	return append(out, string(elem))
}

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GormDataType tells GORM to use a text column.
func (StringArray) GormDataType() string {
	return "text"
}
