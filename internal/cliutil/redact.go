package cliutil

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretKeyPattern   = regexp.MustCompile(`(?i)\b(` + strings.Join(secretKeys(), "|") + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	secretFlagPattern  = regexp.MustCompile(`(?i)^(--?(?:` + strings.Join(secretFlags, "|") + `))(=)(.+)$`)
	urlPasswordPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+:)([^@\s]+)(@)`)
)

var secretFlags = []string{
	"password",
	"passwd",
	"pass",
	"secret",
	"token",
	"api-key",
	"apikey",
	"access-key",
	"secret-key",
	"client-secret",
	"auth",
}

func secretKeys() []string {
	keys := []string{
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
		"AWS_SESSION_TOKEN",
		"AZURE_CLIENT_SECRET",
		"GCP_SERVICE_ACCOUNT_KEY",
		"DATABASE_PASSWORD",
		"DB_PASSWORD",
		"PGPASSWORD",
		"MYSQL_PWD",
		"POSTGRES_PASSWORD",
		"REDIS_PASSWORD",
		"API_KEY",
		"ACCESS_TOKEN",
		"REFRESH_TOKEN",
		"CLIENT_SECRET",
	}
	escaped := make([]string, len(keys))
	for i, key := range keys {
		escaped[i] = regexp.QuoteMeta(key)
	}
	return escaped
}

// RedactSecrets masks common secret placeholders and sensitive key values from the
// supplied string. It replaces ${VAR} style template references, known secret
// key assignments and URL passwords with a generic [redacted] marker.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllStringFunc(message, func(match string) string {
		return "${" + redactedPlaceholder + "}"
	})
	redacted = urlPasswordPattern.ReplaceAllString(redacted, "$1"+redactedPlaceholder+"$3")
	return secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
}

// RedactArgs returns a copy of a command line with secret flag values masked.
// Both --password=value and --password value forms are handled.
func RedactArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	maskNext := false
	for i, arg := range args {
		switch {
		case maskNext:
			out[i] = redactedPlaceholder
			maskNext = false
		case secretFlagPattern.MatchString(arg):
			out[i] = secretFlagPattern.ReplaceAllString(arg, "$1$2"+redactedPlaceholder)
		case isSecretFlag(arg):
			out[i] = arg
			maskNext = i+1 < len(args) && !strings.HasPrefix(args[i+1], "-")
		default:
			out[i] = RedactSecrets(arg)
		}
	}
	return out
}

// RedactCommand renders a redacted command line as a single string.
func RedactCommand(args []string) string {
	return strings.Join(RedactArgs(args), " ")
}

func isSecretFlag(arg string) bool {
	name := strings.TrimLeft(arg, "-")
	if name == arg || name == "" {
		return false
	}
	for _, flag := range secretFlags {
		if strings.EqualFold(name, flag) {
			return true
		}
	}
	return false
}
