package valueobjects

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgerrors "dclass/pkg/errors"
)

// DiagramID identifies a diagram. Ids issued by the persistence API are opaque
// strings (numeric ids such as "42" are common), so only emptiness is checked.
type DiagramID string

// NewDiagramID generates a fresh diagram id
func NewDiagramID() DiagramID {
	return DiagramID(uuid.New().String())
}

// ParseDiagramID validates an externally supplied id
func ParseDiagramID(s string) (DiagramID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", pkgerrors.NewValidation("diagram id is required")
	}
	return DiagramID(s), nil
}

// String returns the string representation of the id
func (id DiagramID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty
func (id DiagramID) IsZero() bool {
	return id == ""
}

// UnmarshalJSON accepts both string and numeric ids
func (id *DiagramID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = DiagramID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("diagram id: %w", err)
	}
	*id = DiagramID(n.String())
	return nil
}
