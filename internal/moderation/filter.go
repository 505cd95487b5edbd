// Package moderation provides content screening for the moderation service.
// It flags messages containing spam patterns (URLs, phone numbers, character
// or word flooding) or blocklisted terms. Screening is advisory: flagged
// messages are reported on the event feed, never recalled from recipients.
package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Compiled patterns for spam detection. Compiled once at package init and
// reused for every call, so they are safe for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs, and bare domains with a
	// path. The bare-domain variant requires a trailing "/" to avoid false
	// positives on version strings like "v2.0" or decimals like "3.14".
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches common phone number formats, anchored to
	// whitespace or string boundaries so short numbers like "100" and digit
	// runs inside words do not match.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// Result describes the outcome of a content check.
type Result struct {
	Flagged bool
	Reason  string // "url", "phone", "char_flood", "word_flood", "blocklist"
	Term    string // the matched blocklist term, if any
}

// Filter screens message text against spam patterns and a blocklist.
type Filter struct {
	blocklist []string
}

// NewFilter creates a Filter with the given blocklisted terms. Terms are
// matched case-insensitively as substrings of the normalized text.
func NewFilter(blocklist []string) *Filter {
	terms := make([]string, 0, len(blocklist))
	for _, t := range blocklist {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return &Filter{blocklist: terms}
}

// Check screens text and returns the first matching flag, if any. Order
// matters: blocklist hits win over spam patterns so the report names the
// offending term.
func (f *Filter) Check(text string) Result {
	lower := strings.ToLower(text)
	for _, term := range f.blocklist {
		if strings.Contains(lower, term) {
			return Result{Flagged: true, Reason: "blocklist", Term: term}
		}
	}

	switch {
	case urlPattern.MatchString(text):
		return Result{Flagged: true, Reason: "url"}
	case phonePattern.MatchString(text):
		return Result{Flagged: true, Reason: "phone"}
	case hasCharFlood(text):
		return Result{Flagged: true, Reason: "char_flood"}
	case hasWordFlood(text):
		return Result{Flagged: true, Reason: "word_flood"}
	}
	return Result{}
}

// hasCharFlood returns true if text contains 5 or more consecutive identical
// characters. Go's regexp package (RE2) does not support backreferences, so
// this is a simple linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood returns true if the same word appears 3 or more times
// consecutively (case-insensitive). Words are delimited by whitespace.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	run := 1
	prev := strings.ToLower(words[0])
	for _, w := range words[1:] {
		w = strings.ToLower(w)
		if w == prev {
			run++
			if run >= threshold {
				return true
			}
		} else {
			run = 1
			prev = w
		}
	}
	return false
}
