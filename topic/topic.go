// Package topic implements broker-standard topic filter matching for
// "/"-delimited topics.
//
// A pattern is a sequence of segments. A segment is a literal, the
// single-level wildcard "+" (exactly one topic segment) or, as the final
// segment only, the multi-level wildcard "#" (one or more trailing topic
// segments). Matching is case-sensitive and performs no normalization: empty
// segments produced by leading, trailing or doubled separators are literal
// empty strings.
//
// "#" requires at least one remaining topic segment, so "a/#" does not match
// "a" but does match "a/" (whose last segment is empty).
package topic

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/c360/busmux/errors"
)

// Wildcard and separator tokens
const (
	Separator   = "/"
	SingleLevel = "+"
	MultiLevel  = "#"
)

// Match reports whether topic matches pattern. It has no side effects and is
// safe for concurrent use.
func Match(pattern, topic string) bool {
	patternSegs := strings.Split(pattern, Separator)
	topicSegs := strings.Split(topic, Separator)

	for i, seg := range patternSegs {
		if seg == MultiLevel {
			return i < len(topicSegs)
		}
		if i >= len(topicSegs) {
			return false
		}
		if seg != SingleLevel && seg != topicSegs[i] {
			return false
		}
	}

	return len(patternSegs) == len(topicSegs)
}

// Segments splits s on the topic separator.
func Segments(s string) []string {
	return strings.Split(s, Separator)
}

// IsWildcard reports whether pattern contains a wildcard segment.
func IsWildcard(pattern string) bool {
	for _, seg := range Segments(pattern) {
		if seg == SingleLevel || seg == MultiLevel {
			return true
		}
	}
	return false
}

// ValidatePattern checks that pattern is a well-formed subscription filter.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.WrapInvalid(errors.ErrInvalidPattern, "topic", "ValidatePattern", "check empty pattern")
	}

	segs := Segments(pattern)
	for i, seg := range segs {
		switch {
		case seg == MultiLevel && i != len(segs)-1:
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q: %s must be the final segment", errors.ErrInvalidPattern, pattern, MultiLevel),
				"topic", "ValidatePattern", "check multi-level wildcard position")
		case seg == MultiLevel || seg == SingleLevel:
		case strings.ContainsAny(seg, SingleLevel+MultiLevel):
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q: wildcard must occupy a whole segment", errors.ErrInvalidPattern, pattern),
				"topic", "ValidatePattern", "check segment")
		}
	}

	return nil
}

// ValidateTopic checks that topic is a concrete publish topic.
func ValidateTopic(topic string) error {
	if topic == "" {
		return errors.WrapInvalid(errors.ErrInvalidTopic, "topic", "ValidateTopic", "check empty topic")
	}
	if strings.ContainsAny(topic, SingleLevel+MultiLevel) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q contains wildcard characters", errors.ErrInvalidTopic, topic),
			"topic", "ValidateTopic", "check wildcards")
	}
	return nil
}

// NATS subject tokens
const (
	natsSeparator   = "."
	natsSingleLevel = "*"
	natsMultiLevel  = ">"
)

// ToNATSSubject translates a topic or pattern into a NATS subject. NATS
// subjects cannot carry empty tokens, dots or whitespace inside a token, so
// such names are rejected rather than silently altered.
func ToNATSSubject(s string) (string, error) {
	if s == "" {
		return "", errors.WrapInvalid(errors.ErrUnsupportedName, "topic", "ToNATSSubject", "check empty name")
	}

	segs := Segments(s)
	tokens := make([]string, len(segs))
	for i, seg := range segs {
		switch {
		case seg == SingleLevel:
			tokens[i] = natsSingleLevel
		case seg == MultiLevel && i == len(segs)-1:
			tokens[i] = natsMultiLevel
		case seg == "":
			return "", errors.WrapInvalid(
				fmt.Errorf("%w: %q has an empty segment", errors.ErrUnsupportedName, s),
				"topic", "ToNATSSubject", "translate segment")
		case strings.ContainsAny(seg, natsSeparator+natsSingleLevel+natsMultiLevel+MultiLevel+SingleLevel) ||
			strings.IndexFunc(seg, unicode.IsSpace) >= 0:
			return "", errors.WrapInvalid(
				fmt.Errorf("%w: %q segment %q", errors.ErrUnsupportedName, s, seg),
				"topic", "ToNATSSubject", "translate segment")
		default:
			tokens[i] = seg
		}
	}

	return strings.Join(tokens, natsSeparator), nil
}

// FromNATSSubject translates a concrete NATS subject back into a topic.
func FromNATSSubject(subject string) string {
	return strings.ReplaceAll(subject, natsSeparator, Separator)
}
