package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONMap stores loosely structured data, such as residual message headers,
// in a jsonb column.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.Errorf("cannot scan %T into JSONMap", value)
	}
}

// GetString returns the value under key when it is a string, or "".
func (j JSONMap) GetString(key string) string {
	if s, ok := j[key].(string); ok {
		return s
	}
	return ""
}
