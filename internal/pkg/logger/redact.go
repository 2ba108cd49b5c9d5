package logger

import "strings"

const masked = "[REDACTED]"

// secretKeys are field-name fragments whose values are never logged.
var secretKeys = []string{"secret", "token", "cookie", "session", "password", "authorization", "api_key", "apikey"}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return masked
		}
	}
	if strings.Contains(key, "username") || strings.Contains(key, "handle") {
		return RedactHandle(val)
	}
	return val
}

// RedactHandle masks an account handle for safe logging.
// "jane.doe" → "ja***"
// Short handles (≤2 chars) are fully masked: "jd" → "***"
func RedactHandle(handle string) string {
	handle = strings.TrimPrefix(handle, "@")
	if len(handle) > 2 {
		return handle[:2] + "***"
	}
	return "***"
}
