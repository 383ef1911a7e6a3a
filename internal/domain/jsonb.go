package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// The types below live in single JSONB columns. Each implements sql.Scanner
// and driver.Valuer so sqlx moves them in and out of PostgreSQL without
// per-call marshaling at the repository layer.

var errUnsupportedJSONB = errors.New("unsupported source type for JSONB column")

func scanJSONB(value any, dest any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errUnsupportedJSONB
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// StringList is a []string stored as a JSONB array.
type StringList []string

// Scan implements the sql.Scanner interface.
func (l *StringList) Scan(value any) error {
	*l = nil
	return scanJSONB(value, l)
}

// Value implements the driver.Valuer interface.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface.
func (p *Policy) Scan(value any) error {
	*p = Policy{}
	return scanJSONB(value, p)
}

// Value implements the driver.Valuer interface.
func (p Policy) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface.
func (s *PageStructure) Scan(value any) error {
	*s = PageStructure{}
	return scanJSONB(value, s)
}

// Value implements the driver.Valuer interface.
func (s PageStructure) Value() (driver.Value, error) {
	return json.Marshal(s)
}
