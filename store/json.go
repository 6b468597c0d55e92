package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONObject is an opaque JSON object stored as text. Only its shape
// (an object, not an array or scalar) is ever validated.
type JSONObject map[string]any

var ErrNotObject = errors.New("value must be a JSON object")

// ParseJSONObject decodes raw JSON, rejecting anything that is not an object.
func ParseJSONObject(raw []byte) (JSONObject, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, ErrNotObject
	}
	return JSONObject(obj), nil
}

func (o JSONObject) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(o))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *JSONObject) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*o = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan JSONObject: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*o = nil
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("scan JSONObject: %w", err)
	}
	*o = m
	return nil
}
