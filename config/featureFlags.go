package config

import (
	"os"
	"strings"
)

// AllowFallbackInvoiceNumbers permits degrading to a timestamp-suffixed
// invoice id when the counter cannot be read or bumped. Fallback ids are
// not sequential and not guaranteed unique; downstream consumers must
// treat them as opaque.
//
// Set via env:
// - ALLOW_FALLBACK_INVOICE_NUMBERS=true
func AllowFallbackInvoiceNumbers() bool {
	return boolEnv("ALLOW_FALLBACK_INVOICE_NUMBERS")
}

// RequireSubmissionKey rejects sale submissions that carry no
// X-Submission-Key header. Off by default so ad-hoc clients keep working;
// turn it on once every client sends keys.
//
// Set via env:
// - REQUIRE_SUBMISSION_KEY=true
func RequireSubmissionKey() bool {
	return boolEnv("REQUIRE_SUBMISSION_KEY")
}

func boolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
