package core

import (
	"context"
	"net/url"
)

// Item is a generic resource object as it travels between the wire and
// the persistence layer.
type Item = map[string]interface{}

// Conn is an opaque, request-scoped connection handle. The zero value
// (nil) selects the source's default connection.
type Conn interface{}

// Query is the persistence layer's query-construction entry point.
// Builder methods return the query for chaining; execution methods take
// a context and hit the database.
type Query interface {
	Where(column string, value interface{}) Query
	WhereIn(column string, values []interface{}) Query
	WhereLike(column string, pattern string) Query
	// Eager requests the named relation to be loaded with the result.
	// Paths not covered by the model's allow-list make execution fail.
	Eager(path string) Query
	Order(column string, ascending bool) Query
	Limit(n int) Query
	Offset(n int) Query

	// First returns the first matching item, or nil without error if
	// there is none.
	First(ctx context.Context) (Item, error)
	List(ctx context.Context) ([]Item, error)
	// Insert stores the item and returns it with all server-assigned
	// fields filled in.
	Insert(ctx context.Context, item Item) (Item, error)
	// Update replaces the matched items' content, Patch merges into it.
	// Both return the number of affected items, as does Delete.
	Update(ctx context.Context, item Item) (int64, error)
	Patch(ctx context.Context, item Item) (int64, error)
	Delete(ctx context.Context) (int64, error)
}

// RelatedQuery is a Query scoped to one owner's relation. Relate
// attaches an already existing record by id; it is only available for
// many-to-many relations.
type RelatedQuery interface {
	Query
	Relate(ctx context.Context, id interface{}) error
}

// Source is the persistence collaborator. Implementations must treat
// the passed Conn as the connection to use for all operations, so that
// a transaction handle can be threaded through explicitly.
type Source interface {
	Query(conn Conn, m Model) Query
	Related(conn Conn, owner Item, m Model, rel Relation) RelatedQuery
	// Transaction runs fn with a transaction-bound Conn. Either all
	// operations performed with it commit, or any error rolls the
	// whole set back and is returned.
	Transaction(ctx context.Context, conn Conn, fn func(tx Conn) error) error
}

// Finder is the filter query-builder collaborator. It interprets
// filter, sort and pagination query-string syntax on top of a base
// query.
type Finder interface {
	// Build applies the full contract: filters, order, pagination and
	// eager-load passthrough. Used by list endpoints.
	Build(params url.Values, base Query) (Query, error)
	// Filter applies the where-clauses only. Used by bulk mutations.
	Filter(params url.Values, base Query) (Query, error)
	// AllowEager returns the permitted eager-load paths.
	AllowEager() []string
}

// Notifier receives a notification for every committed mutation.
type Notifier interface {
	Notify(ctx context.Context, resource string, operation Operation, payload []byte) error
}
