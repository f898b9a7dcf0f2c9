// Package redact strips secrets and infrastructure details from error text
// before it is logged or reported: credentials embedded in Postgres, Redis
// and Sentry URLs, storage access keys, filesystem paths, SQL fragments and
// stack traces.
package redact

import "regexp"

// Placeholders substituted for redacted fragments.
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedHostPlaceholder       = "[REDACTED_HOST]"
	RedactedSQLPlaceholder        = "[REDACTED_SQL]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rules are applied in order. Credentials go first so that the host and
// path rules never see them.
var rules = []rule{
	{
		// userinfo in database, cache, DSN and object store URLs
		regexp.MustCompile(`(?i)\b(postgres(?:ql)?|rediss?|https?|s3)://[^\s/@]*@`),
		"$1://" + RedactedCredentialPlaceholder + "@",
	},
	{
		regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret_key|access_key|sslkey)(\s*[=:]\s*)['"]?[^'"&\s]+`),
		"$1$2" + RedactedCredentialPlaceholder,
	},
	{
		regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`),
		RedactedKeyPlaceholder,
	},
	{
		regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`),
		RedactedStackPlaceholder,
	},
	{
		regexp.MustCompile(
			`(?i)\b(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP)[\s\w,*()]+(?:FROM|INTO|SET|TABLE|INDEX)(?:[\s\w,*()='"]+)?`,
		),
		RedactedSQLPlaceholder,
	},
	{
		regexp.MustCompile(`(/[\w.-]+){2,}`),
		RedactedPathPlaceholder,
	},
	{
		regexp.MustCompile(`[A-Za-z]:\\[^\\\s]+(\\[^\\\s]+)+`),
		RedactedPathPlaceholder,
	},
	{
		regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?::\d{1,5})?\b`),
		RedactedHostPlaceholder,
	},
}

// String redacts sensitive information from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Error redacts sensitive information from err.Error().
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
