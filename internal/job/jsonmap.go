package job

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap maps a JSONB column to a string-keyed object.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	b, err := jsonbBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}

// StringMap maps a JSONB column to a flat string-to-string object, used for
// message and HTTP headers.
type StringMap map[string]string

// Value implements driver.Valuer.
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *StringMap) Scan(src interface{}) error {
	b, err := jsonbBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}

func jsonbBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSONB source type %T", src)
	}
}
