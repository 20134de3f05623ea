package entities

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Edge is a typed relationship between two nodes
type Edge struct {
	ID           string
	Source       string
	Target       string
	RelationType RelationType

	// Data is relation metadata such as multiplicity; preserved as-is.
	Data map[string]any

	// Extra holds renderer-owned keys (sourceHandle, animated, ...).
	Extra map[string]json.RawMessage
}

// NewEdge creates an edge with a generated id
func NewEdge(source, target string, rel RelationType, data map[string]any) Edge {
	return Edge{
		ID:           uuid.New().String(),
		Source:       source,
		Target:       target,
		RelationType: rel,
		Data:         data,
	}
}

// IsSelfLoop reports whether the edge starts and ends on the same node
func (e Edge) IsSelfLoop() bool {
	return e.Source == e.Target
}

// Touches reports whether the edge references the node id at either end
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// Clone returns a copy whose maps are not shared with e
func (e Edge) Clone() Edge {
	if e.Data != nil {
		data := make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			data[k] = v
		}
		e.Data = data
	}
	if e.Extra != nil {
		extra := make(map[string]json.RawMessage, len(e.Extra))
		for k, v := range e.Extra {
			extra[k] = v
		}
		e.Extra = extra
	}
	return e
}

// MarshalJSON writes {"id","source","target","type","data",...}
func (e Edge) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["id"] = e.ID
	out["source"] = e.Source
	out["target"] = e.Target
	out["type"] = e.RelationType
	if e.Data != nil {
		out["data"] = e.Data
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the renderer's edge shape, keeping unknown keys in Extra
func (e *Edge) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var edge Edge
	for k, v := range raw {
		var err error
		switch k {
		case "id":
			err = json.Unmarshal(v, &edge.ID)
		case "source":
			err = json.Unmarshal(v, &edge.Source)
		case "target":
			err = json.Unmarshal(v, &edge.Target)
		case "type":
			var name string
			if err = json.Unmarshal(v, &name); err == nil {
				if rt, ok := ParseRelationType(name); ok {
					edge.RelationType = rt
				} else {
					edge.RelationType = RelationType(name)
				}
			}
		case "data":
			err = json.Unmarshal(v, &edge.Data)
		default:
			if edge.Extra == nil {
				edge.Extra = make(map[string]json.RawMessage)
			}
			edge.Extra[k] = append(json.RawMessage(nil), v...)
		}
		if err != nil {
			return fmt.Errorf("edge %s: %w", k, err)
		}
	}
	*e = edge
	return nil
}
