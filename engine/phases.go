package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GroupKind tags the semantic type of a card group requirement.
type GroupKind uint8

const (
	KindUnknown GroupKind = iota // zero value: kind not recorded
	KindSet
	KindRun
	KindColor
)

// String returns the wire name of the kind.
func (k GroupKind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindRun:
		return "run"
	case KindColor:
		return "color"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind as its wire name.
func (k GroupKind) MarshalJSON() ([]byte, error) {
	if k == KindUnknown {
		return nil, fmt.Errorf("cannot encode unknown group kind")
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a wire name into a kind.
func (k *GroupKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "set":
		*k = KindSet
	case "run":
		*k = KindRun
	case "color":
		*k = KindColor
	default:
		return fmt.Errorf("unknown group kind %q", s)
	}
	return nil
}

// Requirement is one grouping requirement of a phase: Quantity independent
// groups of Kind, each of Size cards.
type Requirement struct {
	Kind     GroupKind `json:"type"`
	Size     uint8     `json:"size"`
	Quantity uint8     `json:"quantity"`
}

// CardCount returns the total number of cards this requirement consumes.
func (r Requirement) CardCount() int { return int(r.Size) * int(r.Quantity) }

// Phase is an ordered list of requirements a player must satisfy in one
// lay-down. Requirement order is semantically significant on the wire.
type Phase []Requirement

// CardCount returns the exact number of cards a lay-down for this phase needs.
func (p Phase) CardCount() int {
	total := 0
	for _, r := range p {
		total += r.CardCount()
	}
	return total
}

// PhaseSet is a match's full objective ladder: an ordered list of phases.
// Phase order is semantically significant; round-tripping through the wire
// representation is lossless and order-preserving.
type PhaseSet []Phase

// DefaultPhaseSet returns the standard ten-phase ladder.
func DefaultPhaseSet() PhaseSet {
	return PhaseSet{
		{{Kind: KindSet, Size: 3, Quantity: 2}},
		{{Kind: KindSet, Size: 3, Quantity: 1}, {Kind: KindRun, Size: 4, Quantity: 1}},
		{{Kind: KindSet, Size: 4, Quantity: 1}, {Kind: KindRun, Size: 4, Quantity: 1}},
		{{Kind: KindRun, Size: 7, Quantity: 1}},
		{{Kind: KindRun, Size: 8, Quantity: 1}},
		{{Kind: KindRun, Size: 9, Quantity: 1}},
		{{Kind: KindSet, Size: 4, Quantity: 2}},
		{{Kind: KindColor, Size: 7, Quantity: 1}},
		{{Kind: KindSet, Size: 5, Quantity: 1}, {Kind: KindSet, Size: 2, Quantity: 1}},
		{{Kind: KindSet, Size: 5, Quantity: 1}, {Kind: KindSet, Size: 3, Quantity: 1}},
	}
}

// DescribeRequirement renders one requirement for presentation, derived
// solely from the requirement itself.
func DescribeRequirement(r Requirement) string {
	switch r.Kind {
	case KindColor:
		if r.Quantity == 1 {
			return fmt.Sprintf("%d cards of one color", r.Size)
		}
		return fmt.Sprintf("%d groups of %d cards of one color", r.Quantity, r.Size)
	default:
		noun := r.Kind.String()
		if r.Quantity != 1 {
			noun += "s"
		}
		return fmt.Sprintf("%d %s of %d", r.Quantity, noun, r.Size)
	}
}

// DescribePhase renders a whole phase, e.g. "1 set of 3 + 1 run of 4".
func DescribePhase(p Phase) string {
	parts := make([]string, len(p))
	for i, r := range p {
		parts[i] = DescribeRequirement(r)
	}
	return strings.Join(parts, " + ")
}
