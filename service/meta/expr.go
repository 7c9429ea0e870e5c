package meta

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// ExpandEnv replaces every ${env.NAME} in value with the NAME environment
// variable; unset variables expand to "".
func ExpandEnv(value string) string {
	return Expand(value, os.Getenv)
}

// Expand replaces every ${env.NAME} in value with lookup(NAME). An expression
// without a closing brace is kept literally, as is a prefix followed by an
// invalid name; scanning then resumes right after the prefix.
func Expand(value string, lookup func(string) string) string {
	if !strings.Contains(value, envPrefix) {
		return value
	}
	var b strings.Builder
	rest := value
	for {
		idx := strings.Index(rest, envPrefix)
		if idx < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:idx])
		rest = rest[idx+len(envPrefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(envPrefix)
			b.WriteString(rest)
			return b.String()
		}
		name := rest[:end]
		if !validName(name) {
			b.WriteString(envPrefix)
			continue
		}
		b.WriteString(lookup(name))
		rest = rest[end+1:]
	}
}

func validName(name string) bool {
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
