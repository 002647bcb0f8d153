// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package sqldata implements the persistence contract on PostgreSQL.
// Every model gets one table with a uuid primary key, a jsonb
// properties document and a timestamp; relations are realized as
// foreign-key columns and join tables derived from the descriptors.
package sqldata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/csql"
	"github.com/relabs-tech/restgen/core/logger"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so queries can be
// threaded through a transaction handle.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Source is a PostgreSQL core.Source.
type Source struct {
	db     *csql.DB
	models map[string]core.Model
	order  []string // models in foreign-key dependency order
}

// New creates a source for the given models. It does not touch the
// database; call UpdateSchema to create the tables.
func New(db *csql.DB, models ...core.Model) *Source {
	s := &Source{
		db:     db,
		models: map[string]core.Model{},
	}
	for _, m := range models {
		m.Relations = append([]core.Relation(nil), m.Relations...)
		for i := range m.Relations {
			if m.Relations[i].Owner == "" {
				m.Relations[i].Owner = m.Table
			}
		}
		if _, ok := s.models[m.Table]; ok {
			panic(fmt.Sprintf("duplicate model `%s`", m.Table))
		}
		s.models[m.Table] = m
	}
	s.order = s.dependencyOrder()
	return s
}

// dependencyOrder sorts the models so that referenced tables are
// created before the tables carrying the foreign keys.
func (s *Source) dependencyOrder() []string {
	// table -> tables that must exist first
	deps := map[string][]string{}
	for _, m := range s.models {
		for _, rel := range m.Relations {
			switch rel.Kind {
			case core.HasMany:
				deps[rel.Target] = append(deps[rel.Target], rel.Owner)
			case core.BelongsToOne:
				deps[rel.Owner] = append(deps[rel.Owner], rel.Target)
			}
		}
	}
	var order []string
	done := map[string]bool{}
	var visit func(table string, trail map[string]bool)
	visit = func(table string, trail map[string]bool) {
		if done[table] {
			return
		}
		if trail[table] {
			panic(fmt.Sprintf("circular model dependencies at `%s`, cannot enforce foreign keys", table))
		}
		trail[table] = true
		for _, dep := range deps[table] {
			if dep != table {
				visit(dep, trail)
			}
		}
		delete(trail, table)
		done[table] = true
		order = append(order, table)
	}
	for _, m := range s.modelList() {
		visit(m.Table, map[string]bool{})
	}
	return order
}

func (s *Source) modelList() []core.Model {
	tables := make([]string, 0, len(s.models))
	for table := range s.models {
		tables = append(tables, table)
	}
	// deterministic iteration
	for i := 0; i < len(tables); i++ {
		for j := i + 1; j < len(tables); j++ {
			if tables[j] < tables[i] {
				tables[i], tables[j] = tables[j], tables[i]
			}
		}
	}
	models := make([]core.Model, 0, len(tables))
	for _, table := range tables {
		models = append(models, s.models[table])
	}
	return models
}

func (s *Source) tableExpression(table string) string {
	return s.db.Schema + `."` + table + `"`
}

// UpdateSchema creates the model tables, relation columns and join
// tables if they do not exist yet.
func (s *Source) UpdateSchema(ctx context.Context) error {
	rlog := logger.Default()
	for _, table := range s.order {
		m := s.models[table]
		rlog.Debugln("create table:", table)
		createColumns := []string{
			`"` + m.ID() + `" uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY`,
			"properties jsonb NOT NULL DEFAULT '{}'::jsonb",
			"timestamp timestamp NOT NULL DEFAULT now()",
		}
		for _, column := range s.wiringColumns(table) {
			createColumns = append(createColumns, column)
		}
		createQuery := "CREATE table IF NOT EXISTS " + s.tableExpression(table) +
			"(" + strings.Join(createColumns, ", ") + ");"
		if _, err := s.db.ExecContext(ctx, createQuery); err != nil {
			return errors.Wrapf(err, "cannot create table for `%s`", table)
		}
	}

	for _, m := range s.modelList() {
		for _, rel := range m.Relations {
			if rel.Kind != core.ManyToMany {
				continue
			}
			if rel.Owner == rel.Target {
				panic(fmt.Sprintf("many-to-many relation `%s` relates `%s` to itself, symmetric relation not possible",
					rel.Name, rel.Owner))
			}
			joinTable := rel.Owner + ":" + rel.Name
			rlog.Debugln("create relation:", joinTable)
			ownerModel := s.models[rel.Owner]
			targetModel := s.models[rel.Target]
			createQuery := "CREATE table IF NOT EXISTS " + s.tableExpression(joinTable) + "(" +
				"serial SERIAL, " +
				`"` + rel.Owner + `_id" uuid NOT NULL REFERENCES ` + s.tableExpression(rel.Owner) +
				` ("` + ownerModel.ID() + `") ON DELETE CASCADE, ` +
				`"` + rel.Target + `_id" uuid NOT NULL REFERENCES ` + s.tableExpression(rel.Target) +
				` ("` + targetModel.ID() + `") ON DELETE CASCADE, ` +
				`UNIQUE ("` + rel.Owner + `_id", "` + rel.Target + `_id"));`
			if _, err := s.db.ExecContext(ctx, createQuery); err != nil {
				return errors.Wrapf(err, "cannot create join table for `%s`", rel.Name)
			}
		}
	}
	return nil
}

// wiringColumns returns the column definitions that realize relations
// on this table: foreign keys of has-many relations pointing here and
// pointers of the model's own belongs-to-one relations.
func (s *Source) wiringColumns(table string) []string {
	var columns []string
	// a has-many foreign key and a belongs-to-one pointer can share a
	// column, e.g. author_id from both sides of an author/book pair
	seen := map[string]bool{}
	m := s.models[table]
	for _, other := range s.modelList() {
		for _, rel := range other.Relations {
			if rel.Kind == core.HasMany && rel.Target == table && !seen[rel.Owner+"_id"] {
				seen[rel.Owner+"_id"] = true
				owner := s.models[rel.Owner]
				columns = append(columns,
					`"`+rel.Owner+`_id" uuid REFERENCES `+s.tableExpression(rel.Owner)+
						` ("`+owner.ID()+`") ON DELETE CASCADE`)
			}
		}
	}
	for _, rel := range m.Relations {
		if rel.Kind == core.BelongsToOne && !seen[rel.Name+"_id"] {
			seen[rel.Name+"_id"] = true
			target := s.models[rel.Target]
			columns = append(columns,
				`"`+rel.Name+`_id" uuid REFERENCES `+s.tableExpression(rel.Target)+
					` ("`+target.ID()+`") ON DELETE SET NULL`)
		}
	}
	return columns
}

// systemColumns returns the non-document columns of a table, i.e. the
// primary key and the relation wiring columns.
func (s *Source) systemColumns(table string) []string {
	m := s.models[table]
	columns := []string{m.ID()}
	seen := map[string]bool{m.ID(): true}
	for _, other := range s.modelList() {
		for _, rel := range other.Relations {
			if rel.Kind == core.HasMany && rel.Target == table && !seen[rel.Owner+"_id"] {
				seen[rel.Owner+"_id"] = true
				columns = append(columns, rel.Owner+"_id")
			}
		}
	}
	for _, rel := range m.Relations {
		if rel.Kind == core.BelongsToOne && !seen[rel.Name+"_id"] {
			seen[rel.Name+"_id"] = true
			columns = append(columns, rel.Name+"_id")
		}
	}
	return columns
}

func (s *Source) conn(c core.Conn) querier {
	if tx, ok := c.(*sql.Tx); ok {
		return tx
	}
	return s.db.DB
}

// Query returns a query over the model's table.
func (s *Source) Query(conn core.Conn, m core.Model) core.Query {
	return &query{src: s, q: s.conn(conn), model: s.models[m.Table], limit: -1}
}

// Related returns a query scoped to the owner's relation.
func (s *Source) Related(conn core.Conn, owner core.Item, m core.Model, rel core.Relation) core.RelatedQuery {
	return &query{
		src:        s,
		q:          s.conn(conn),
		model:      s.models[rel.Target],
		related:    true,
		owner:      owner,
		ownerModel: s.models[m.Table],
		rel:        rel,
		limit:      -1,
	}
}

// Transaction starts a database transaction and runs fn with the
// transaction-bound connection handle. A nested call joins the running
// transaction.
func (s *Source) Transaction(ctx context.Context, conn core.Conn, fn func(tx core.Conn) error) error {
	if tx, ok := conn.(*sql.Tx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "cannot begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "cannot commit transaction")
}
