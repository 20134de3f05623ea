package entities

import (
	"fmt"
	"time"
)

// Visibility is the UML access modifier of a class member
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
)

// DefaultReturnType is used for methods created without a return type.
const DefaultReturnType = "void"

// IsValid checks if the visibility is one of the UML modifiers
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityProtected:
		return true
	default:
		return false
	}
}

// Symbol returns the UML notation for the visibility.
// Unknown values render as public.
func (v Visibility) Symbol() string {
	switch v {
	case VisibilityPrivate:
		return "-"
	case VisibilityProtected:
		return "#"
	default:
		return "+"
	}
}

// Attribute is a typed field of a class node
type Attribute struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Visibility Visibility `json:"visibility"`
}

// WithDefaults fills unset fields with their UML defaults.
func (a Attribute) WithDefaults() Attribute {
	if a.Visibility == "" {
		a.Visibility = VisibilityPrivate
	}
	return a
}

// String renders the attribute as "- name: type".
func (a Attribute) String() string {
	return fmt.Sprintf("%s %s: %s", a.WithDefaults().Visibility.Symbol(), a.Name, a.Type)
}

// Method is an operation of a class node
type Method struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ReturnType string     `json:"returnType"`
	Parameters string     `json:"parameters"`
	Visibility Visibility `json:"visibility"`
}

// WithDefaults fills unset fields with their UML defaults.
func (m Method) WithDefaults() Method {
	if m.ReturnType == "" {
		m.ReturnType = DefaultReturnType
	}
	if m.Visibility == "" {
		m.Visibility = VisibilityPublic
	}
	return m
}

// String renders the method as "+ name(params): returnType".
func (m Method) String() string {
	d := m.WithDefaults()
	return fmt.Sprintf("%s %s(%s): %s", d.Visibility.Symbol(), d.Name, d.Parameters, d.ReturnType)
}

// memberClock is swapped in tests to force timestamp collisions.
var memberClock = time.Now

// newMemberID builds "<prefix>-<millis>-<index>" and advances the timestamp
// until the id is not in taken. The chosen id is added to taken.
func newMemberID(prefix string, index int, taken map[string]bool) string {
	ts := memberClock().UnixMilli()
	for {
		id := fmt.Sprintf("%s-%d-%d", prefix, ts, index)
		if !taken[id] {
			taken[id] = true
			return id
		}
		ts++
	}
}

// EnsureAttributeIDs returns a copy of attrs where every attribute has an id
// and defaults applied. Existing ids are kept; new ones never collide with them.
func EnsureAttributeIDs(attrs []Attribute) []Attribute {
	if attrs == nil {
		return nil
	}
	taken := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if a.ID != "" {
			taken[a.ID] = true
		}
	}
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		a = a.WithDefaults()
		if a.ID == "" {
			a.ID = newMemberID("attr", i, taken)
		}
		out[i] = a
	}
	return out
}

// EnsureMethodIDs is the method counterpart of EnsureAttributeIDs.
func EnsureMethodIDs(methods []Method) []Method {
	if methods == nil {
		return nil
	}
	taken := make(map[string]bool, len(methods))
	for _, m := range methods {
		if m.ID != "" {
			taken[m.ID] = true
		}
	}
	out := make([]Method, len(methods))
	for i, m := range methods {
		m = m.WithDefaults()
		if m.ID == "" {
			m.ID = newMemberID("method", i, taken)
		}
		out[i] = m
	}
	return out
}

// NextAttributeID returns an id for an attribute appended to existing.
func NextAttributeID(existing []Attribute) string {
	taken := make(map[string]bool, len(existing))
	for _, a := range existing {
		taken[a.ID] = true
	}
	return newMemberID("attr", len(existing), taken)
}

// NextMethodID returns an id for a method appended to existing.
func NextMethodID(existing []Method) string {
	taken := make(map[string]bool, len(existing))
	for _, m := range existing {
		taken[m.ID] = true
	}
	return newMemberID("method", len(existing), taken)
}
