package coreerrors

import "regexp"

// These patterns intentionally favor precision over exhaustive PII coverage;
// the sanitizer is a best-effort scrubber for messages that are about to be
// shown to end users or written to a durable error log, not a DLP system.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-.\s]{7,}\d`)
	ipv4Pattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	ipv6Pattern  = regexp.MustCompile(`\b[0-9a-fA-F]{1,4}(?::[0-9a-fA-F]{1,4}){7}\b`)
	// unixPathPattern matches absolute filesystem paths under a user's home
	// directory, e.g. /home/alice/secrets or /Users/bob/Documents.
	unixPathPattern = regexp.MustCompile(`/(?:home|Users)/[^\s/]+(?:/[^\s]*)?`)
)

// Sanitize removes common PII patterns from msg before it is persisted to an
// ErrorRecord or emitted on the Event Bus. The unsanitized original is the
// caller's responsibility to preserve separately (e.g., in a stack trace
// field) if it is needed for debugging.
func Sanitize(msg string) string {
	msg = emailPattern.ReplaceAllString(msg, "[redacted-email]")
	msg = ipv6Pattern.ReplaceAllString(msg, "[redacted-ip]")
	msg = ipv4Pattern.ReplaceAllString(msg, "[redacted-ip]")
	msg = unixPathPattern.ReplaceAllString(msg, "[redacted-path]")
	msg = phonePattern.ReplaceAllString(msg, "[redacted-phone]")
	return msg
}

// PublicMessage returns the stable, user-facing string for a given error
// Kind, mirroring goa-ai's hooks.PublicError* variables. Callers may still
// prepend context (e.g., the error_id) but should not append unsanitized
// provider text.
func PublicMessage(kind Type) string {
	switch kind {
	case TypeTimeout:
		return "The request timed out. Please retry."
	case TypeRateLimited:
		return "The AI provider is rate-limiting requests. Please wait a moment and retry."
	case TypeUpstream5xx, TypeNetwork:
		return "The AI provider is temporarily unavailable. Please retry."
	case TypeContextLength:
		return "The resume and job description are too long for the selected model."
	case TypeAgentParse, TypeValidatorScoreMiss:
		return "The AI provider returned a response we could not parse. Retrying may help."
	case TypeAuth:
		return "The AI provider rejected our credentials."
	case TypeBadRequest:
		return "The request was invalid."
	case TypeQuotaExceeded:
		return "You have reached your free run quota."
	case TypeJobFetchFailed:
		return "We could not fetch the job posting from the provided URL."
	case TypeRendererSyntax:
		return "The generated document could not be rendered."
	default:
		return "The request failed. Please retry."
	}
}
