package logging

import (
	"regexp"

	"github.com/sirupsen/logrus"
)

const redacted = "[REDACTED]"

var (
	// Field names that might carry key material or credentials.
	sensitiveFieldPattern = regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|key|auth|authorization|credential|private[-_]?key|session[-_]?id|salt|nonce|plaintext)`)

	// Inline assignments such as "master_key=abcd".
	inlinePattern = regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token|key|credential|api[-_]?key|access[-_]?token)\s*[:=]\s*\S+`)
)

// sanitizeHook redacts sensitive fields and inline credentials before an
// entry is formatted.
type sanitizeHook struct{}

func (h *sanitizeHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *sanitizeHook) Fire(entry *logrus.Entry) error {
	entry.Message = sanitizeString(entry.Message)

	for key, value := range entry.Data {
		if key == "component" || key == logrus.ErrorKey {
			if err, ok := value.(error); ok {
				entry.Data[key] = sanitizeString(err.Error())
			}
			continue
		}
		if IsSensitiveFieldName(key) {
			entry.Data[key] = redacted
			continue
		}
		entry.Data[key] = sanitizeValue(value)
	}
	return nil
}

// IsSensitiveFieldName reports whether a field name suggests sensitive data.
func IsSensitiveFieldName(name string) bool {
	return sensitiveFieldPattern.MatchString(name)
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return sanitizeString(v)
	case []byte:
		return redacted
	case map[string]interface{}:
		sanitized := make(map[string]interface{}, len(v))
		for k, val := range v {
			if IsSensitiveFieldName(k) {
				sanitized[k] = redacted
			} else {
				sanitized[k] = sanitizeValue(val)
			}
		}
		return sanitized
	default:
		return value
	}
}

func sanitizeString(s string) string {
	if s == "" {
		return s
	}
	return inlinePattern.ReplaceAllString(s, "$1="+redacted)
}
