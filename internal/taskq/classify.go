package taskq

import (
	"errors"
	"regexp"
	"strings"
)

// Outcome is the disposition chosen for a failed attempt.
type Outcome int

const (
	OutcomeRetry Outcome = iota
	OutcomeIgnore
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetry:
		return "retry"
	case OutcomeIgnore:
		return "ignore"
	case OutcomeFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Downstream ESP/CRM calls return loosely-typed error strings rather
// than structured codes, so substring matching on the message is the
// only available signal. Keep the tables here as the single source of
// truth; don't scatter message checks through task bodies.

// ignoreMessages marks an error as not worth retrying or recording when
// any entry appears in its message.
var ignoreMessages = []string{
	"INVALID_EMAIL_ADDRESS",
	"InvalidEmailAddress",
	"An invalid phone number was provided",
	"No valid subscribers were provided",
	"There are no valid subscribers",
	"email address is suppressed",
	"invalid email address",
}

// ignorePatterns holds pattern-based ignores.
var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`campaignId \d+ not found`),
}

// IsIgnorable reports whether err matches the ignore tables.
func IsIgnorable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, ignoreMsg := range ignoreMessages {
		if strings.Contains(msg, ignoreMsg) {
			return true
		}
	}
	for _, ignoreRe := range ignorePatterns {
		if ignoreRe.MatchString(msg) {
			return true
		}
	}
	return false
}

// Classify maps a failed attempt to its disposition.
//
// An explicit retry request bypasses the tables entirely. Ignorable
// errors take precedence over everything else, including remaining
// retries. Permanent errors abort retries. Anything else retries while
// retries remain and fails once they are exhausted.
func Classify(err error, retriesLeft int) Outcome {
	var retryErr *RetryError
	if errors.As(err, &retryErr) {
		if retriesLeft > 0 {
			return OutcomeRetry
		}
		return OutcomeFail
	}

	if IsIgnorable(err) {
		return OutcomeIgnore
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return OutcomeFail
	}

	if retriesLeft > 0 {
		return OutcomeRetry
	}
	return OutcomeFail
}
