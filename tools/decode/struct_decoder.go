package decode

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 是否启用宽松解码（默认 true）：
	// 例如 "123" -> string、1.0 -> int64 等。
	WeaklyTypedInput bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

func WithWeaklyTypedInput(v bool) Options {
	return Options{WeaklyTypedInput: v}
}

// Payload decodes a raw JSON event payload into T. Field names come from
// the `json` tag. An empty or null payload decodes into the zero T.
func Payload[T any](raw json.RawMessage, opts ...Options) (*T, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return &out, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("payload not an object: %w", err)
	}
	if err := Map(m, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// Map decodes a generic map into out (a pointer).
func Map(m map[string]any, out any, opts ...Options) error {
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			numberToStringHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}

// ReadString 从 map 中读取 string 字段（兼容数字 id）。
func ReadString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing field %q", key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("field %q not string (got %T)", key, v)
	}
}

// ReadStringSlice 读取字符串数组（兼容 []any）。
func ReadStringSlice(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing field %q", key)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q type %T not array", key, v)
	}
	out := make([]string, 0, len(arr))
	for _, it := range arr {
		switch s := it.(type) {
		case string:
			out = append(out, s)
		case float64:
			out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
		default:
			b, _ := json.Marshal(s)
			out = append(out, string(b))
		}
	}
	return out, nil
}

// floatToIntHook：把 float64 自动转为 int / int32 / int64。
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

// numberToStringHook keeps numeric ids like 42 as "42" rather than "42.000000".
func numberToStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 || to != reflect.String {
			return data, nil
		}
		return strconv.FormatFloat(data.(float64), 'f', -1, 64), nil
	}
}

// jsonRawStringToMapHook：把 JSON 字符串自动转为 map[string]any。
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
