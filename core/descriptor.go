package core

// RelationKind is the tagged variant that determines which endpoints a
// relation generates.
type RelationKind int

// all supported relation kinds
const (
	// BelongsToOne links the owner to at most one related record via a
	// foreign-key column on the owner itself.
	BelongsToOne RelationKind = iota
	// HasMany links the owner to any number of related records via a
	// foreign-key column on the related table.
	HasMany
	// ManyToMany links owner and related records through a join table.
	ManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case BelongsToOne:
		return "belongs-to-one"
	case HasMany:
		return "has-many"
	case ManyToMany:
		return "many-to-many"
	}
	return "unknown"
}

// ToOne reports whether at most one related record is possible. This is
// the condition that suppresses the replace-collection endpoint.
func (k RelationKind) ToOne() bool {
	return k == BelongsToOne
}

// Relation describes a named, typed link from an owner model to a
// related model. The name is used as the route path segment.
type Relation struct {
	Name   string
	Kind   RelationKind
	Owner  string // owner table, filled in during registration
	Target string // related table
}

// Model describes a resource type. Table is the unique key used for
// route naming and for locating the model's finder. AllowEager lists
// the relation names that clients may eager-load; everything else is
// rejected.
type Model struct {
	Table      string
	IDColumn   string // defaults to "id"
	Relations  []Relation
	AllowEager []string
}

// ID returns the model's primary-key column.
func (m Model) ID() string {
	if m.IDColumn == "" {
		return "id"
	}
	return m.IDColumn
}

// RelationByName returns the named relation.
func (m Model) RelationByName(name string) (Relation, bool) {
	for _, rel := range m.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}
