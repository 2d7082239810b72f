package taskq

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		retriesLeft int
		want        Outcome
	}{
		{"generic error with retries left", errors.New("ConnectionError: api.example.com refused"), 3, OutcomeRetry},
		{"generic error exhausted", errors.New("ConnectionError: api.example.com refused"), 0, OutcomeFail},
		{"ignorable substring", errors.New("Error: INVALID_EMAIL_ADDRESS for contact"), 5, OutcomeIgnore},
		{"ignorable beats exhausted retries", errors.New("email address is suppressed"), 0, OutcomeIgnore},
		{"ignorable pattern", errors.New("campaignId 1234 not found"), 2, OutcomeIgnore},
		{"pattern needs digits", errors.New("campaignId abc not found"), 0, OutcomeFail},
		{"explicit retry request", Retry("throttled"), 1, OutcomeRetry},
		{"explicit retry request exhausted", Retry("throttled"), 0, OutcomeFail},
		{"retry request bypasses ignore table", Retry("invalid email address"), 2, OutcomeRetry},
		{"permanent error with retries left", Permanent(errors.New("bad parameters")), 5, OutcomeFail},
		{"wrapped permanent error", fmt.Errorf("calling api: %w", Permanent(errors.New("nope"))), 3, OutcomeFail},
		{"wrapped ignorable message", fmt.Errorf("sfmc: %w", errors.New("invalid email address")), 3, OutcomeIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err, tt.retriesLeft); got != tt.want {
				t.Errorf("Classify(%v, %d) = %s, want %s", tt.err, tt.retriesLeft, got, tt.want)
			}
		})
	}
}

func TestIsIgnorable(t *testing.T) {
	if IsIgnorable(nil) {
		t.Error("nil error reported ignorable")
	}
	if IsIgnorable(errors.New("some unrelated failure")) {
		t.Error("unrelated error reported ignorable")
	}
	if !IsIgnorable(errors.New("There are no valid subscribers in this batch")) {
		t.Error("known message not reported ignorable")
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeRetry.String() != "retry" || OutcomeIgnore.String() != "ignore" || OutcomeFail.String() != "fail" {
		t.Error("outcome labels changed")
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should stay nil")
	}
}
