package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	mrnPattern   = regexp.MustCompile(`(?i)\b(?:mrn|medical record(?: number)?)[:#\s]*[a-z0-9\-]{4,}\b`)
	dobPattern   = regexp.MustCompile(`\b(?:0?[1-9]|[12][0-9]|3[01])[/.\-](?:0?[1-9]|1[0-2])[/.\-](?:19|20)\d{2}\b|\b(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12][0-9]|3[01])\b`)
)

// RedactPII masks common high-risk identifiers a patient may type into the chat.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	replace := func(re *regexp.Regexp, marker string) {
		next := re.ReplaceAllString(out, marker)
		changed = changed || next != out
		out = next
	}

	replace(emailPattern, "[REDACTED_EMAIL]")
	replace(mrnPattern, "[REDACTED_MRN]")
	// Dates and SSNs before cards and phones, which would otherwise swallow them.
	replace(dobPattern, "[REDACTED_DATE]")
	replace(ssnPattern, "[REDACTED_SSN]")
	replace(cardPattern, "[REDACTED_CARD]")
	replace(phonePattern, "[REDACTED_PHONE]")

	return out, changed
}
