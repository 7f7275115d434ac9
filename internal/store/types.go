package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a free-form JSON object stored as JSONB (Postgres) or TEXT (SQLite)
type JSONMap map[string]any

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = make(JSONMap)
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}

	if len(data) == 0 {
		*m = make(JSONMap)
		return nil
	}

	result := make(JSONMap)
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("unmarshalling JSONMap: %w", err)
	}
	*m = result
	return nil
}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalling JSONMap: %w", err)
	}
	return string(data), nil
}

// timestamp normalizes times to the precision and zone both dialects store
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
