// Package memdata implements the persistence contract entirely in
// memory. It is the source of choice for unit tests and for trying out
// a generated API without a database; relation semantics are driven by
// the same descriptors the SQL source uses.
package memdata

import (
	"context"
	"sync"

	"github.com/relabs-tech/restgen/core"
)

type joinPair struct {
	owner   interface{}
	related interface{}
}

type store struct {
	tables map[string][]core.Item
	joins  map[string][]joinPair
	nextID int64
}

func (st *store) clone() *store {
	clone := &store{
		tables: make(map[string][]core.Item, len(st.tables)),
		joins:  make(map[string][]joinPair, len(st.joins)),
		nextID: st.nextID,
	}
	for table, rows := range st.tables {
		copied := make([]core.Item, len(rows))
		for i, row := range rows {
			copied[i] = copyItem(row)
		}
		clone.tables[table] = copied
	}
	for key, pairs := range st.joins {
		clone.joins[key] = append([]joinPair{}, pairs...)
	}
	return clone
}

func copyItem(item core.Item) core.Item {
	copied := make(core.Item, len(item))
	for k, v := range item {
		copied[k] = v
	}
	return copied
}

// Source is an in-memory core.Source.
type Source struct {
	mu     sync.Mutex
	models map[string]core.Model
	store  *store
}

// New creates an empty in-memory source for the given models.
func New(models ...core.Model) *Source {
	s := &Source{
		models: map[string]core.Model{},
		store: &store{
			tables: map[string][]core.Item{},
			joins:  map[string][]joinPair{},
		},
	}
	for _, m := range models {
		m.Relations = append([]core.Relation(nil), m.Relations...)
		for i := range m.Relations {
			if m.Relations[i].Owner == "" {
				m.Relations[i].Owner = m.Table
			}
		}
		s.models[m.Table] = m
		s.store.tables[m.Table] = []core.Item{}
	}
	return s
}

// txConn marks a connection handle bound to a running transaction.
type txConn struct{}

func (s *Source) lock(conn core.Conn) func() {
	if _, ok := conn.(txConn); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Transaction runs fn on a copy-on-write snapshot: any error restores
// the previous state, success keeps the mutations.
func (s *Source) Transaction(ctx context.Context, conn core.Conn, fn func(tx core.Conn) error) error {
	if _, ok := conn.(txConn); ok {
		return fn(conn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.store.clone()
	if err := fn(txConn{}); err != nil {
		s.store = snapshot
		return err
	}
	return nil
}

// Query returns a query over the model's table.
func (s *Source) Query(conn core.Conn, m core.Model) core.Query {
	return &query{src: s, conn: conn, model: s.model(m.Table), limit: -1}
}

// Related returns a query scoped to the owner's relation.
func (s *Source) Related(conn core.Conn, owner core.Item, m core.Model, rel core.Relation) core.RelatedQuery {
	return &query{
		src:        s,
		conn:       conn,
		model:      s.model(rel.Target),
		related:    true,
		owner:      owner,
		ownerModel: s.model(m.Table),
		rel:        rel,
		limit:      -1,
	}
}

func (s *Source) model(table string) core.Model {
	m, ok := s.models[table]
	if !ok {
		panic("unknown model `" + table + "`")
	}
	return m
}

func joinKey(rel core.Relation) string {
	return rel.Owner + ":" + rel.Name
}

func foreignKey(rel core.Relation) string {
	return rel.Owner + "_id"
}

func pointerKey(rel core.Relation) string {
	return rel.Name + "_id"
}

// preserved returns the columns of a table that writes must not touch:
// the primary key and all relation wiring columns.
func (s *Source) preserved(table string) map[string]bool {
	m := s.models[table]
	keep := map[string]bool{m.ID(): true}
	for _, other := range s.models {
		for _, rel := range other.Relations {
			if rel.Kind == core.HasMany && rel.Target == table {
				keep[foreignKey(rel)] = true
			}
		}
	}
	for _, rel := range m.Relations {
		if rel.Kind == core.BelongsToOne {
			keep[pointerKey(rel)] = true
		}
	}
	return keep
}
