// Package bootstrap inspects the host before discovery runs. Each probe
// records evidence with a confidence score; the synthesis step turns the
// evidence into concrete discovery settings and warnings.
package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Category classifies types of evidence
type Category string

const (
	CategoryEnvironment Category = "environment"
	CategoryNetwork     Category = "network"
	CategoryCapability  Category = "capability"
)

// Evidence represents a single piece of discovered knowledge
type Evidence struct {
	ID         string         `json:"id"`
	Category   Category       `json:"category"`
	Property   string         `json:"property"`
	Value      any            `json:"value"`
	Confidence float64        `json:"confidence"` // 0.0-1.0
	Source     string         `json:"source"`     // e.g. "filesystem", "procfs", "probe"
	Method     string         `json:"method"`     // e.g. "/.dockerenv exists"
	Timestamp  time.Time      `json:"timestamp"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// NewEvidence creates evidence with auto-generated ID
func NewEvidence(cat Category, prop string, value any, conf float64, source, method string) Evidence {
	e := Evidence{
		Category:   cat,
		Property:   prop,
		Value:      value,
		Confidence: conf,
		Source:     source,
		Method:     method,
		Timestamp:  time.Now(),
	}
	e.ID = e.generateID()
	return e
}

// WithRaw adds raw data to evidence and returns it (for chaining)
func (e Evidence) WithRaw(raw map[string]any) Evidence {
	e.Raw = raw
	return e
}

func (e *Evidence) generateID() string {
	data := fmt.Sprintf("%s:%s:%v:%s:%d", e.Category, e.Property, e.Value, e.Source, e.Timestamp.UnixNano())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// EvidenceSet aggregates multiple pieces of evidence
type EvidenceSet struct {
	items []Evidence
}

// NewEvidenceSet creates an empty evidence set
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{}
}

// Add appends a single piece of evidence
func (es *EvidenceSet) Add(e Evidence) {
	es.items = append(es.items, e)
}

// AddAll appends multiple pieces of evidence
func (es *EvidenceSet) AddAll(items []Evidence) {
	es.items = append(es.items, items...)
}

// All returns all evidence
func (es *EvidenceSet) All() []Evidence {
	return es.items
}

// Count returns the number of evidence items
func (es *EvidenceSet) Count() int {
	return len(es.items)
}

// ByProperty returns all evidence for a specific property
func (es *EvidenceSet) ByProperty(cat Category, prop string) []Evidence {
	var result []Evidence
	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			result = append(result, e)
		}
	}
	return result
}

// BestValue returns the highest-confidence value for a property
func (es *EvidenceSet) BestValue(cat Category, prop string) (any, float64, bool) {
	var best Evidence
	var found bool

	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			if !found || e.Confidence > best.Confidence {
				best = e
				found = true
			}
		}
	}

	if !found {
		return nil, 0, false
	}
	return best.Value, best.Confidence, true
}

// Bool returns the best value of a boolean property; ok is false when no
// evidence exists or the value is not a bool
func (es *EvidenceSet) Bool(cat Category, prop string) (value, ok bool) {
	v, _, found := es.BestValue(cat, prop)
	if !found {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// String returns the best value of a string property
func (es *EvidenceSet) String(cat Category, prop string) (string, bool) {
	v, _, found := es.BestValue(cat, prop)
	if !found {
		return "", false
	}
	s, isString := v.(string)
	return s, isString
}

// AggregateConfidence combines evidence for the same property: the highest
// confidence plus a decaying bonus per corroborating source, capped at 0.99
func (es *EvidenceSet) AggregateConfidence(cat Category, prop string) float64 {
	var confidences []float64
	for _, e := range es.ByProperty(cat, prop) {
		confidences = append(confidences, e.Confidence)
	}

	if len(confidences) == 0 {
		return 0
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(confidences)))

	result := confidences[0]
	for i := 1; i < len(confidences); i++ {
		result += confidences[i] * 0.1 / float64(i)
	}

	if result > 0.99 {
		result = 0.99
	}

	return result
}
