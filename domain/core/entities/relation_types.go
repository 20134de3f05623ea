package entities

import "strings"

// RelationType represents the UML relationship drawn by an edge
type RelationType string

const (
	// RelationAssociation is a plain (possibly recursive) association
	RelationAssociation RelationType = "association"

	// RelationManyToMany is an association with many multiplicity on both ends
	RelationManyToMany RelationType = "many-to-many"

	// RelationAggregation is a shared whole/part relationship
	RelationAggregation RelationType = "aggregation"

	// RelationComposition is an owning whole/part relationship
	RelationComposition RelationType = "composition"

	// RelationInheritance is a generalization from subclass to superclass
	RelationInheritance RelationType = "inheritance"

	// RelationRealization is an implementation of an interface
	RelationRealization RelationType = "realization"

	// RelationDependency is a usage dependency
	RelationDependency RelationType = "dependency"
)

// relationAliases maps alternative names onto canonical relation types.
var relationAliases = map[string]RelationType{
	"generalization": RelationInheritance,
	"many_to_many":   RelationManyToMany,
	"manytomany":     RelationManyToMany,
}

// AllRelationTypes lists the relation types in toolbar order.
func AllRelationTypes() []RelationType {
	return []RelationType{
		RelationAssociation,
		RelationManyToMany,
		RelationAggregation,
		RelationComposition,
		RelationInheritance,
		RelationRealization,
		RelationDependency,
	}
}

// IsValid checks if the relation type is valid
func (r RelationType) IsValid() bool {
	switch r {
	case RelationAssociation, RelationManyToMany, RelationAggregation,
		RelationComposition, RelationInheritance, RelationRealization, RelationDependency:
		return true
	default:
		return false
	}
}

// AllowsSelfLoop reports whether an edge of this type may connect a node to itself.
// Only the association family models recursive relationships.
func (r RelationType) AllowsSelfLoop() bool {
	return r == RelationAssociation || r == RelationManyToMany
}

// String returns the string representation of the relation type
func (r RelationType) String() string {
	return string(r)
}

// ParseRelationType resolves a relation name, accepting known aliases.
func ParseRelationType(s string) (RelationType, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if rt := RelationType(name); rt.IsValid() {
		return rt, true
	}
	if rt, ok := relationAliases[name]; ok {
		return rt, true
	}
	return "", false
}
