package apierror

import (
	"errors"
	"fmt"
	"testing"
)

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{400, KindValidation},
		{401, KindAuthentication},
		{403, KindAuthentication},
		{404, KindValidation},
		{422, KindValidation},
		{429, KindRateLimit},
		{500, KindServer},
		{503, KindServer},
		{305, KindInternal},
	}
	for _, c := range cases {
		if got := FromStatus(c.status, "x").Kind; got != c.kind {
			t.Errorf("status %d: expected kind %s, got %s", c.status, c.kind, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	retryable := []Kind{KindRateLimit, KindNetwork, KindServer}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	fatal := []Kind{KindValidation, KindAuthentication, KindConfiguration, KindIO, KindCache, KindInternal}
	for _, k := range fatal {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestRetryableUnwrapsChains(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindNetwork, "connection reset"))
	if !Retryable(err) {
		t.Error("wrapped network error should stay retryable")
	}
	if Retryable(errors.New("plain")) {
		t.Error("unclassified error should not be retryable")
	}
}

func TestExitCodes(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:     2,
		KindIO:             3,
		KindConfiguration:  4,
		KindAuthentication: 5,
		KindRateLimit:      5,
		KindNetwork:        5,
		KindServer:         5,
		KindInternal:       5,
	}
	for k, want := range cases {
		if got := k.ExitCode(); got != want {
			t.Errorf("%s: expected exit %d, got %d", k, want, got)
		}
	}
	if ExitCode(nil) != 0 {
		t.Error("nil error should exit 0")
	}
}

func TestErrorMessageIncludesAttempts(t *testing.T) {
	e := New(KindRateLimit, "rate limit exceeded")
	e.Attempts = 4
	msg := e.Error()
	if want := "rate_limit: rate limit exceeded (after 4 attempts)"; msg != want {
		t.Errorf("expected %q, got %q", want, msg)
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("boom")
	e := Wrap(KindServer, inner, "upstream failed")
	if !errors.Is(e, inner) {
		t.Error("Wrap should preserve the error chain")
	}
}
