package chain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// errClass is the recovery action for a provider error.
type errClass int

const (
	// classFatal aborts the fetch.
	classFatal errClass = iota
	// classShrink means the requested block range produced too many results;
	// halve the window and retry.
	classShrink
	// classBackoff means the provider is rate limiting; sleep and retry.
	classBackoff
)

// Providers do not agree on error codes or messages for range/result limits,
// so classification is substring matching over known phrasings. Anything
// unrecognized is fatal. New provider quirks are a one-line addition here.
var shrinkPhrases = []string{
	"block range is too large",
	"range too large",
	"too many results",
	"response size exceeded",
	"limit exceeded",
	"query returned more than",
}

var backoffPhrases = []string{
	"rate limit",
	"too many requests",
	"429",
}

// classify maps a provider error to its recovery action.
func classify(err error) errClass {
	if err == nil {
		return classFatal
	}
	msg := strings.ToLower(err.Error())

	for _, s := range shrinkPhrases {
		if strings.Contains(msg, s) {
			return classShrink
		}
	}
	for _, s := range backoffPhrases {
		if strings.Contains(msg, s) {
			return classBackoff
		}
	}
	return classFatal
}

var retryInRe = regexp.MustCompile(`retry in (\d+)s`)

// retryHint extracts a provider-suggested wait time ("retry in Ns") from a
// rate-limit error, if present.
func retryHint(err error) (time.Duration, bool) {
	m := retryInRe.FindStringSubmatch(strings.ToLower(err.Error()))
	if m == nil {
		return 0, false
	}
	secs, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
