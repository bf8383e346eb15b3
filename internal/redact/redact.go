// Package redact masks credential-like values before they reach logs and errors.
package redact

import (
	"database/sql/driver"
	"log/slog"
	"strings"
	"unicode"
)

// Mask replaces every redacted value.
const Mask = "***"

var keyTokens = []string{
	"password", "passwd", "pwd", "secret", "token", "apikey", "api_key",
	"access_key", "secret_key", "private_key", "privatekey", "sslkey", "ssl_key",
	"sslcert", "ssl_cert", "sslrootcert", "ssl_ca", "sslca",
}

var valueTokens = []string{
	"password", "passwd", "pwd", "secret", "token", "apikey", "api_key",
	"access_key", "secret_key", "private_key", "privatekey", "bearer", "authorization",
}

// Secret wraps a statement parameter bound to a sensitive field. Drivers
// receive the real value through driver.Valuer; every textual rendering
// prints Mask.
type Secret struct {
	v any
}

// Mark wraps v as a Secret. Marking an existing Secret returns it unchanged.
func Mark(v any) Secret {
	if s, ok := v.(Secret); ok {
		return s
	}
	return Secret{v: v}
}

// Value implements driver.Valuer.
func (s Secret) Value() (driver.Value, error) {
	return driver.DefaultParameterConverter.ConvertValue(s.v)
}

// String implements fmt.Stringer.
func (Secret) String() string { return Mask }

// GoString keeps %#v from leaking the wrapped value.
func (Secret) GoString() string { return Mask }

// LogValue implements slog.LogValuer.
func (Secret) LogValue() slog.Value { return slog.StringValue(Mask) }

// Unwrap returns the raw value behind a Secret, or v itself.
func Unwrap(v any) any {
	if s, ok := v.(Secret); ok {
		return s.v
	}
	return v
}

// UnwrapAll returns a copy of args with every Secret unwrapped.
func UnwrapAll(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = Unwrap(a)
	}
	return out
}

// IsSensitiveKey reports whether a parameter or option name looks like a credential.
func IsSensitiveKey(key string) bool {
	normalized := strings.ToLower(key)
	squashed := compact(normalized)
	for _, tok := range keyTokens {
		if strings.Contains(normalized, tok) || strings.Contains(squashed, compact(tok)) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether a textual value carries a credential marker.
func IsSensitiveValue(s string) bool {
	normalized := strings.ToLower(s)
	for _, tok := range valueTokens {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}

// Value returns the loggable form of a single parameter.
func Value(v any) any {
	switch v := v.(type) {
	case Secret:
		return Mask
	case string:
		if IsSensitiveValue(v) {
			return Mask
		}
	case []byte:
		if IsSensitiveValue(string(v)) {
			return Mask
		}
	}
	return v
}

// Args returns a copy of args suitable for logs and error messages.
func Args(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = Value(a)
	}
	return out
}

// Params masks map entries whose key looks like a credential.
func Params(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if IsSensitiveKey(k) {
			v = Mask
		}
		out[k] = v
	}
	return out
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
