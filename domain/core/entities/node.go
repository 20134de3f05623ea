package entities

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NodeKind is the variant of a diagram node
type NodeKind string

const (
	NodeKindClass NodeKind = "class"
	NodeKindNote  NodeKind = "note"
)

// IsValid checks if the node kind is valid
func (k NodeKind) IsValid() bool {
	return k == NodeKindClass || k == NodeKindNote
}

// defaultPosition is handed to new nodes; the renderer moves them afterwards.
var defaultPosition = json.RawMessage(`{"x":0,"y":0}`)

// NodeData is the kind-dependent payload of a node.
// Class nodes use Label, Attributes and Methods; note nodes use Content.
type NodeData struct {
	Label      string      `json:"label"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Methods    []Method    `json:"methods,omitempty"`
	Content    string      `json:"content,omitempty"`
}

// Clone returns a deep copy of the data
func (d NodeData) Clone() NodeData {
	if d.Attributes != nil {
		d.Attributes = append([]Attribute(nil), d.Attributes...)
	}
	if d.Methods != nil {
		d.Methods = append([]Method(nil), d.Methods...)
	}
	return d
}

// Node is a positioned element of a class diagram.
// Position and any other renderer-owned keys are carried through untouched.
type Node struct {
	ID       string
	Kind     NodeKind
	Position json.RawMessage
	Data     NodeData

	// Extra holds top-level keys this package does not interpret (width, selected, ...).
	Extra map[string]json.RawMessage
}

// NewNode creates a node of the given kind with a generated id and empty data
func NewNode(kind NodeKind) (Node, error) {
	if !kind.IsValid() {
		return Node{}, fmt.Errorf("unknown node kind %q", kind)
	}
	node := Node{
		ID:       uuid.New().String(),
		Kind:     kind,
		Position: append(json.RawMessage(nil), defaultPosition...),
	}
	if kind == NodeKindClass {
		node.Data = NodeData{Attributes: []Attribute{}, Methods: []Method{}}
	}
	return node, nil
}

// Clone returns a deep copy of the node
func (n Node) Clone() Node {
	if n.Position != nil {
		n.Position = append(json.RawMessage(nil), n.Position...)
	}
	n.Data = n.Data.Clone()
	if n.Extra != nil {
		extra := make(map[string]json.RawMessage, len(n.Extra))
		for k, v := range n.Extra {
			extra[k] = v
		}
		n.Extra = extra
	}
	return n
}

// MarshalJSON writes the node in the renderer's shape: {"id","type","position","data",...}
func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(n.Extra)+4)
	for k, v := range n.Extra {
		out[k] = v
	}

	id, err := json.Marshal(n.ID)
	if err != nil {
		return nil, err
	}
	kind, err := json.Marshal(n.Kind)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, err
	}

	out["id"] = id
	out["type"] = kind
	out["data"] = data
	if len(n.Position) > 0 {
		out["position"] = n.Position
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the renderer's shape, keeping unknown keys in Extra
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var node Node
	for k, v := range raw {
		switch k {
		case "id":
			if err := json.Unmarshal(v, &node.ID); err != nil {
				return fmt.Errorf("node id: %w", err)
			}
		case "type":
			if err := json.Unmarshal(v, &node.Kind); err != nil {
				return fmt.Errorf("node type: %w", err)
			}
		case "position":
			node.Position = append(json.RawMessage(nil), v...)
		case "data":
			if err := json.Unmarshal(v, &node.Data); err != nil {
				return fmt.Errorf("node data: %w", err)
			}
		default:
			if node.Extra == nil {
				node.Extra = make(map[string]json.RawMessage)
			}
			node.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	*n = node
	return nil
}
