package services

import (
	"strings"

	"dclass/domain/core/aggregates"
	"dclass/domain/core/entities"
	pkgerrors "dclass/pkg/errors"
)

// AttributeInput describes a new attribute
type AttributeInput struct {
	Name       string
	Type       string
	Visibility entities.Visibility
}

// AttributePatch changes an existing attribute; nil fields are left unchanged
type AttributePatch struct {
	Name       *string
	Type       *string
	Visibility *entities.Visibility
}

// MethodInput describes a new method
type MethodInput struct {
	Name       string
	ReturnType string
	Parameters string
	Visibility entities.Visibility
}

// MethodPatch changes an existing method; nil fields are left unchanged
type MethodPatch struct {
	Name       *string
	ReturnType *string
	Parameters *string
	Visibility *entities.Visibility
}

// The member operations below read the node's data under the store lock
// immediately before merging, so concurrent edits to other fields survive.

// RenameClass sets a class node's label
func (s *DiagramStore) RenameClass(nodeID, label string) error {
	return s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		return aggregates.NodeDataPatch{Label: &label}, nil
	})
}

// SetNoteContent sets a note node's body
func (s *DiagramStore) SetNoteContent(nodeID, content string) error {
	return s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		return aggregates.NodeDataPatch{Content: &content}, nil
	})
}

// AddAttribute appends an attribute; name and type are required
func (s *DiagramStore) AddAttribute(nodeID string, in AttributeInput) (entities.Attribute, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Type) == "" {
		return entities.Attribute{}, pkgerrors.NewValidation("attribute name and type are required")
	}
	if in.Visibility != "" && !in.Visibility.IsValid() {
		return entities.Attribute{}, pkgerrors.NewValidation("invalid visibility")
	}

	var added entities.Attribute
	err := s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		added = entities.Attribute{
			ID:         entities.NextAttributeID(d.Attributes),
			Name:       in.Name,
			Type:       in.Type,
			Visibility: in.Visibility,
		}.WithDefaults()
		next := append(append([]entities.Attribute{}, d.Attributes...), added)
		return aggregates.NodeDataPatch{Attributes: &next}, nil
	})
	return added, err
}

// UpdateAttribute changes fields of one attribute
func (s *DiagramStore) UpdateAttribute(nodeID, attrID string, patch AttributePatch) error {
	if patch.Visibility != nil && !patch.Visibility.IsValid() {
		return pkgerrors.NewValidation("invalid visibility")
	}
	return s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		next := append([]entities.Attribute{}, d.Attributes...)
		for i, a := range next {
			if a.ID != attrID {
				continue
			}
			if patch.Name != nil {
				a.Name = *patch.Name
			}
			if patch.Type != nil {
				a.Type = *patch.Type
			}
			if patch.Visibility != nil {
				a.Visibility = *patch.Visibility
			}
			next[i] = a
			return aggregates.NodeDataPatch{Attributes: &next}, nil
		}
		return aggregates.NodeDataPatch{}, memberNotFound("attribute", attrID)
	})
}

// RemoveAttribute deletes one attribute
func (s *DiagramStore) RemoveAttribute(nodeID, attrID string) error {
	return s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		next := make([]entities.Attribute, 0, len(d.Attributes))
		for _, a := range d.Attributes {
			if a.ID != attrID {
				next = append(next, a)
			}
		}
		if len(next) == len(d.Attributes) {
			return aggregates.NodeDataPatch{}, memberNotFound("attribute", attrID)
		}
		return aggregates.NodeDataPatch{Attributes: &next}, nil
	})
}

// AddMethod appends a method; a name is required
func (s *DiagramStore) AddMethod(nodeID string, in MethodInput) (entities.Method, error) {
	if strings.TrimSpace(in.Name) == "" {
		return entities.Method{}, pkgerrors.NewValidation("method name is required")
	}
	if in.Visibility != "" && !in.Visibility.IsValid() {
		return entities.Method{}, pkgerrors.NewValidation("invalid visibility")
	}

	var added entities.Method
	err := s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		added = entities.Method{
			ID:         entities.NextMethodID(d.Methods),
			Name:       in.Name,
			ReturnType: in.ReturnType,
			Parameters: in.Parameters,
			Visibility: in.Visibility,
		}.WithDefaults()
		next := append(append([]entities.Method{}, d.Methods...), added)
		return aggregates.NodeDataPatch{Methods: &next}, nil
	})
	return added, err
}

// UpdateMethod changes fields of one method
func (s *DiagramStore) UpdateMethod(nodeID, methodID string, patch MethodPatch) error {
	if patch.Visibility != nil && !patch.Visibility.IsValid() {
		return pkgerrors.NewValidation("invalid visibility")
	}
	return s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		next := append([]entities.Method{}, d.Methods...)
		for i, m := range next {
			if m.ID != methodID {
				continue
			}
			if patch.Name != nil {
				m.Name = *patch.Name
			}
			if patch.ReturnType != nil {
				m.ReturnType = *patch.ReturnType
			}
			if patch.Parameters != nil {
				m.Parameters = *patch.Parameters
			}
			if patch.Visibility != nil {
				m.Visibility = *patch.Visibility
			}
			next[i] = m
			return aggregates.NodeDataPatch{Methods: &next}, nil
		}
		return aggregates.NodeDataPatch{}, memberNotFound("method", methodID)
	})
}

// RemoveMethod deletes one method
func (s *DiagramStore) RemoveMethod(nodeID, methodID string) error {
	return s.editNode(nodeID, func(d entities.NodeData) (aggregates.NodeDataPatch, error) {
		next := make([]entities.Method, 0, len(d.Methods))
		for _, m := range d.Methods {
			if m.ID != methodID {
				next = append(next, m)
			}
		}
		if len(next) == len(d.Methods) {
			return aggregates.NodeDataPatch{}, memberNotFound("method", methodID)
		}
		return aggregates.NodeDataPatch{Methods: &next}, nil
	})
}

// editNode reads the node's current data and applies the patch built from it
func (s *DiagramStore) editNode(nodeID string, build func(entities.NodeData) (aggregates.NodeDataPatch, error)) error {
	var err error
	s.mutate(func() bool {
		node, ok := s.model.FindNode(nodeID)
		if !ok {
			err = &pkgerrors.AppError{Type: pkgerrors.ErrorTypeNotFound, Message: "node " + nodeID, Err: ErrNodeNotFound}
			return false
		}
		var patch aggregates.NodeDataPatch
		patch, err = build(node.Data)
		if err != nil {
			return false
		}
		s.model, _ = s.model.UpdateNode(nodeID, patch)
		return true
	})
	return err
}

func memberNotFound(kind, id string) error {
	return &pkgerrors.AppError{Type: pkgerrors.ErrorTypeNotFound, Message: kind + " " + id, Err: ErrMemberNotFound}
}
