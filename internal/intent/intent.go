// Package intent classifies free-text chat replies into a coarse
// accept/decline signal. Classification is pure and deterministic: the same
// text always yields the same result, independent of any conversation state.
package intent

import "strings"

type Intent string

const (
	Accept  Intent = "accept"
	Decline Intent = "decline"
	Unknown Intent = "unknown"
)

// Default phrase sets. Deployments can extend them through config; matching
// is always against the normalized form.
var (
	DefaultAcceptPhrases = []string{
		"yes", "y", "yep", "yeah", "yup", "sure", "ok", "okay",
		"sounds good", "will do", "on it", "i'm on it", "im on it",
		"i'll take it", "ill take it", "i'll take this", "ill take this",
		"i'll do it", "ill do it", "i can take it", "i can do it",
		"i got it", "i've got it", "ive got it", "mine", "taking it",
		"accept", "accepted", "confirm", "confirmed",
	}
	DefaultDeclinePhrases = []string{
		"no", "n", "nope", "nah", "no thanks", "no thank you",
		"can't", "cant", "i can't", "i cant", "can't do it", "cant do it",
		"not me", "not mine", "not my task", "wrong person",
		"pass", "i'll pass", "ill pass", "decline", "declined",
		"too busy", "i'm too busy", "im too busy", "no capacity",
	}
)

// Classifier matches normalized replies against curated phrase sets.
type Classifier struct {
	accept  map[string]struct{}
	decline map[string]struct{}
}

// NewClassifier builds a classifier from the default phrase sets plus any
// extra phrases.
func NewClassifier(extraAccept, extraDecline []string) *Classifier {
	c := &Classifier{
		accept:  make(map[string]struct{}),
		decline: make(map[string]struct{}),
	}
	for _, p := range DefaultAcceptPhrases {
		c.accept[Normalize(p)] = struct{}{}
	}
	for _, p := range extraAccept {
		c.accept[Normalize(p)] = struct{}{}
	}
	for _, p := range DefaultDeclinePhrases {
		c.decline[Normalize(p)] = struct{}{}
	}
	for _, p := range extraDecline {
		c.decline[Normalize(p)] = struct{}{}
	}
	return c
}

// Classify returns Accept, Decline or Unknown for a reply. A text matching
// both sets (possible with user-supplied phrase overrides) is ambiguous and
// reported Unknown rather than guessed.
func (c *Classifier) Classify(text string) Intent {
	norm := Normalize(text)
	if norm == "" {
		return Unknown
	}
	_, acc := c.accept[norm]
	_, dec := c.decline[norm]
	switch {
	case acc && dec:
		return Unknown
	case acc:
		return Accept
	case dec:
		return Decline
	}
	return Unknown
}

// Normalize lowercases, collapses whitespace and strips trailing punctuation
// so "  Yes!! " and "yes" compare equal.
func Normalize(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Join(strings.Fields(norm), " ")
	norm = strings.TrimRight(norm, ".!?,;: ")
	return norm
}
