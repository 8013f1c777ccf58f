package verdict

import (
	"fmt"
	"strings"
)

// Method identifies a similarity method.
type Method uint8

const (
	MethodExact Method = iota + 1
	MethodFuzzy
	MethodSemantic
	MethodSize
)

// Methods lists every method in evaluation order.
var Methods = []Method{MethodExact, MethodFuzzy, MethodSemantic, MethodSize}

var methodNames = map[Method]string{
	MethodExact:    "EXACT",
	MethodFuzzy:    "FUZZY",
	MethodSemantic: "SEMANTIC",
	MethodSize:     "SIZE",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler. The zero value encodes as "".
func (m Method) MarshalText() ([]byte, error) {
	if m == 0 {
		return []byte{}, nil
	}
	s, ok := methodNames[m]
	if !ok {
		return nil, fmt.Errorf("unknown method %d", uint8(m))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = 0
		return nil
	}
	v, err := parseEnum(string(b), methodNames, "method")
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Status describes what happened to a single method lookup.
type Status uint8

const (
	StatusOK Status = iota + 1
	StatusFailed
	StatusTimeout
	StatusSkipped
	StatusNotRequested
)

var statusNames = map[Status]string{
	StatusOK:           "OK",
	StatusFailed:       "FAILED",
	StatusTimeout:      "TIMEOUT",
	StatusSkipped:      "SKIPPED",
	StatusNotRequested: "NOT_REQUESTED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	n, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", uint8(s))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := parseEnum(string(b), statusNames, "status")
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Classification is the stored verdict on a corpus fingerprint.
type Classification uint8

const (
	ClassUnknown Classification = iota + 1
	ClassBenign
	ClassMalicious
)

var classificationNames = map[Classification]string{
	ClassUnknown:   "UNKNOWN",
	ClassBenign:    "BENIGN",
	ClassMalicious: "MALICIOUS",
}

func (c Classification) String() string {
	if n, ok := classificationNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Classification(%d)", uint8(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Classification) MarshalText() ([]byte, error) {
	if c == 0 {
		return []byte{}, nil
	}
	n, ok := classificationNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown classification %d", uint8(c))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Classification) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = 0
		return nil
	}
	v, err := ParseClassification(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseClassification parses a classification name, case-insensitively.
func ParseClassification(s string) (Classification, error) {
	return parseEnum(s, classificationNames, "classification")
}

// Outcome is the final decision returned to the caller.
type Outcome uint8

const (
	OutcomeAllow Outcome = iota + 1
	OutcomeWarn
	OutcomeBlock
)

var outcomeNames = map[Outcome]string{
	OutcomeAllow: "ALLOW",
	OutcomeWarn:  "WARN",
	OutcomeBlock: "BLOCK",
}

func (o Outcome) String() string {
	if n, ok := outcomeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	if o == 0 {
		return []byte{}, nil
	}
	n, ok := outcomeNames[o]
	if !ok {
		return nil, fmt.Errorf("unknown outcome %d", uint8(o))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*o = 0
		return nil
	}
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOutcome parses an outcome name, case-insensitively.
func ParseOutcome(s string) (Outcome, error) {
	return parseEnum(s, outcomeNames, "outcome")
}

// ReasonCode explains which rule produced a Decision.
type ReasonCode uint8

const (
	ReasonExactMatchMalicious ReasonCode = iota + 1
	ReasonExactMatchBenign
	ReasonExactMatchUnclassified
	ReasonSimilarityBlock
	ReasonSimilarityWarn
	ReasonSimilarityBelowThreshold
	ReasonNoMatch
	ReasonBackendUnreachable
)

var reasonNames = map[ReasonCode]string{
	ReasonExactMatchMalicious:      "EXACT_MATCH_MALICIOUS",
	ReasonExactMatchBenign:         "EXACT_MATCH_BENIGN",
	ReasonExactMatchUnclassified:   "EXACT_MATCH_UNCLASSIFIED",
	ReasonSimilarityBlock:          "SIMILARITY_BLOCK",
	ReasonSimilarityWarn:           "SIMILARITY_WARN",
	ReasonSimilarityBelowThreshold: "SIMILARITY_BELOW_THRESHOLD",
	ReasonNoMatch:                  "NO_MATCH",
	ReasonBackendUnreachable:       "BACKEND_UNREACHABLE",
}

func (r ReasonCode) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return fmt.Sprintf("ReasonCode(%d)", uint8(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r ReasonCode) MarshalText() ([]byte, error) {
	if r == 0 {
		return []byte{}, nil
	}
	n, ok := reasonNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown reason code %d", uint8(r))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ReasonCode) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = 0
		return nil
	}
	v, err := ParseReasonCode(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseReasonCode parses a reason code name.
func ParseReasonCode(s string) (ReasonCode, error) {
	return parseEnum(s, reasonNames, "reason code")
}

func parseEnum[T comparable](s string, names map[T]string, kind string) (T, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for v, n := range names {
		if n == s {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, s)
}
