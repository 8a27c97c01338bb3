package logger

import (
	"encoding/json"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// secretKeys are never shown in any part.
var secretKeys = []string{
	"password",
	"secret",
	"token",
}

// identifierKeys keep their last 4 characters so operators can tell
// merchant accounts apart.
var identifierKeys = []string{
	"username",
}

const masked = "****"

// MaskSecret hides a secret entirely.
func MaskSecret(string) string {
	return masked
}

// MaskJSON returns a deep-copied map with sensitive fields masked.
func MaskJSON(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		switch {
		case matches(key, secretKeys):
			out[key] = masked
		case matches(key, identifierKeys):
			out[key] = maskIdentifier(value)
		default:
			out[key] = maskJSONValue(value)
		}
	}
	return out
}

// MaskForm returns form values as a flat map with sensitive fields masked.
func MaskForm(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key := range values {
		v := values.Get(key)
		switch {
		case matches(key, secretKeys):
			v = MaskSecret(v)
		case matches(key, identifierKeys):
			v = maskLast4(v)
		}
		out[key] = v
	}
	return out
}

// MaskRaw is a zap field carrying a raw gateway payload with sensitive keys
// masked. Payloads that are not JSON objects are logged by size only.
func MaskRaw(key string, raw []byte) zap.Field {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return zap.Int(key+"_bytes", len(raw))
	}
	return zap.Any(key, MaskJSON(obj))
}

func maskJSONValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return MaskJSON(typed)
	case []any:
		items := make([]any, 0, len(typed))
		for _, entry := range typed {
			items = append(items, maskJSONValue(entry))
		}
		return items
	default:
		return value
	}
}

func maskIdentifier(value any) any {
	if s, ok := value.(string); ok {
		return maskLast4(s)
	}
	return masked
}

func matches(key string, needles []string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range needles {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}

func maskLast4(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return masked
	}
	return masked + value[len(value)-4:]
}
