// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package sqldata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/relabs-tech/restgen/core"
)

type condOp int

const (
	opEqual condOp = iota
	opLike
	opIn
)

type cond struct {
	column string
	op     condOp
	value  interface{}
	values []interface{}
}

type query struct {
	src        *Source
	q          querier
	model      core.Model
	related    bool
	owner      core.Item
	ownerModel core.Model
	rel        core.Relation

	conds      []cond
	eager      []string
	orderBy    string
	descending bool
	limit      int
	offset     int

	// impossible is set when a condition cannot match any row, for
	// example an id that is not a valid uuid. Reads then return empty
	// results and mutations affect zero rows.
	impossible bool
}

func (q *query) Where(column string, value interface{}) core.Query {
	q.conds = append(q.conds, cond{column: column, op: opEqual, value: value})
	return q
}

func (q *query) WhereIn(column string, values []interface{}) core.Query {
	q.conds = append(q.conds, cond{column: column, op: opIn, values: values})
	return q
}

func (q *query) WhereLike(column string, pattern string) core.Query {
	q.conds = append(q.conds, cond{column: column, op: opLike, value: pattern})
	return q
}

func (q *query) Eager(path string) core.Query {
	q.eager = append(q.eager, path)
	return q
}

func (q *query) Order(column string, ascending bool) core.Query {
	q.orderBy = column
	q.descending = !ascending
	return q
}

func (q *query) Limit(n int) core.Query {
	q.limit = n
	return q
}

func (q *query) Offset(n int) core.Query {
	q.offset = n
	return q
}

func (q *query) isSystemColumn(column string) bool {
	for _, c := range q.src.systemColumns(q.model.Table) {
		if c == column {
			return true
		}
	}
	return false
}

func (q *query) columnExpression(column string) string {
	if q.isSystemColumn(column) {
		return `"` + column + `"`
	}
	return `properties->>'` + column + `'`
}

// parseUUID canonicalizes an id value into a uuid string. System
// columns are uuid typed, so an unparseable value can never match.
func parseUUID(value interface{}) (string, bool) {
	s, ok := core.CanonicalID(value)
	if !ok {
		return "", false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// whereClauses renders the conditions and relation scope into SQL
// fragments, appending query parameters to args.
func (q *query) whereClauses(args *[]interface{}) []string {
	var clauses []string
	param := func(value interface{}) string {
		*args = append(*args, value)
		return fmt.Sprintf("$%d", len(*args))
	}

	for _, c := range q.conds {
		system := q.isSystemColumn(c.column)
		switch c.op {
		case opEqual:
			if system {
				id, ok := parseUUID(c.value)
				if !ok {
					q.impossible = true
					continue
				}
				clauses = append(clauses, q.columnExpression(c.column)+" = "+param(id))
			} else {
				clauses = append(clauses, q.columnExpression(c.column)+" = "+param(fmt.Sprintf("%v", c.value)))
			}
		case opLike:
			expression := q.columnExpression(c.column)
			if system {
				expression += "::text"
			}
			clauses = append(clauses, expression+" LIKE "+param(c.value))
		case opIn:
			if system {
				ids := make([]string, 0, len(c.values))
				for _, value := range c.values {
					if id, ok := parseUUID(value); ok {
						ids = append(ids, id)
					}
				}
				if len(ids) == 0 {
					q.impossible = true
					continue
				}
				clauses = append(clauses, q.columnExpression(c.column)+" = ANY("+param(pq.Array(ids))+"::uuid[])")
			} else {
				texts := make([]string, 0, len(c.values))
				for _, value := range c.values {
					texts = append(texts, fmt.Sprintf("%v", value))
				}
				clauses = append(clauses, q.columnExpression(c.column)+" = ANY("+param(pq.Array(texts))+")")
			}
		}
	}

	if q.related {
		ownerID, ok := parseUUID(q.owner[q.ownerModel.ID()])
		if !ok {
			q.impossible = true
			return clauses
		}
		idColumn := `"` + q.model.ID() + `"`
		switch q.rel.Kind {
		case core.HasMany:
			clauses = append(clauses, `"`+q.rel.Owner+`_id" = `+param(ownerID))
		case core.BelongsToOne:
			clauses = append(clauses, idColumn+` = (SELECT "`+q.rel.Name+`_id" FROM `+
				q.src.tableExpression(q.rel.Owner)+` WHERE "`+q.ownerModel.ID()+`" = `+param(ownerID)+")")
		case core.ManyToMany:
			clauses = append(clauses, idColumn+` IN (SELECT "`+q.rel.Target+`_id" FROM `+
				q.src.tableExpression(q.rel.Owner+":"+q.rel.Name)+` WHERE "`+q.rel.Owner+`_id" = `+param(ownerID)+")")
		}
	}
	return clauses
}

func (q *query) selectColumns() []string {
	columns := []string{}
	for _, column := range q.src.systemColumns(q.model.Table) {
		columns = append(columns, `"`+column+`"`)
	}
	return append(columns, "properties", `"timestamp"`)
}

func (q *query) List(ctx context.Context) ([]core.Item, error) {
	var args []interface{}
	clauses := q.whereClauses(&args)
	if q.impossible {
		return []core.Item{}, nil
	}

	sqlQuery := "SELECT " + strings.Join(q.selectColumns(), ", ") + " FROM " + q.src.tableExpression(q.model.Table)
	if len(clauses) > 0 {
		sqlQuery += " WHERE " + strings.Join(clauses, " AND ")
	}
	if q.orderBy != "" {
		direction := " ASC"
		if q.descending {
			direction = " DESC"
		}
		sqlQuery += " ORDER BY " + q.columnExpression(q.orderBy) + direction
	}
	if q.limit >= 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.limit)
	}
	if q.offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.offset)
	}

	rows, err := q.q.QueryContext(ctx, sqlQuery+";", args...)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot query `%s`", q.model.Table)
	}
	defer rows.Close()

	systemColumns := q.src.systemColumns(q.model.Table)
	items := []core.Item{}
	for rows.Next() {
		item, err := q.scanItem(rows, systemColumns)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "cannot read `%s` rows", q.model.Table)
	}
	if err := q.loadEager(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanItem reads one row into an item. The jsonb document provides the
// dynamic fields, the system columns are merged on top so they cannot
// be overridden from the document.
func (q *query) scanItem(row rowScanner, systemColumns []string) (core.Item, error) {
	id := uuid.UUID{}
	wiring := make([]uuid.NullUUID, len(systemColumns)-1)
	var properties []byte
	var timestamp time.Time

	dest := []interface{}{&id}
	for i := range wiring {
		dest = append(dest, &wiring[i])
	}
	dest = append(dest, &properties, &timestamp)
	if err := row.Scan(dest...); err != nil {
		return nil, errors.Wrapf(err, "cannot scan `%s` row", q.model.Table)
	}

	item := core.Item{}
	if err := json.Unmarshal(properties, &item); err != nil {
		return nil, errors.Wrapf(err, "corrupt properties document in `%s`", q.model.Table)
	}
	item[q.model.ID()] = id.String()
	for i, column := range systemColumns[1:] {
		if wiring[i].Valid {
			item[column] = wiring[i].UUID.String()
		} else {
			item[column] = nil
		}
	}
	item["timestamp"] = timestamp
	return item, nil
}

// loadEager fetches the requested relations for every item. Paths must
// be covered by the model's allow-list.
func (q *query) loadEager(ctx context.Context, items []core.Item) error {
	for _, path := range q.eager {
		allowed := false
		for _, a := range q.model.AllowEager {
			if a == path {
				allowed = true
				break
			}
		}
		if !allowed {
			return core.BadRequest("eager path '" + path + "' not allowed")
		}
		rel, ok := q.model.RelationByName(path)
		if !ok {
			return core.BadRequest("eager path '" + path + "' is not a relation")
		}
		for _, item := range items {
			sub := &query{
				src:        q.src,
				q:          q.q,
				model:      q.src.models[rel.Target],
				related:    true,
				owner:      item,
				ownerModel: q.model,
				rel:        rel,
				limit:      -1,
			}
			if rel.Kind.ToOne() {
				related, err := sub.First(ctx)
				if err != nil {
					return err
				}
				item[path] = related
			} else {
				related, err := sub.List(ctx)
				if err != nil {
					return err
				}
				item[path] = related
			}
		}
	}
	return nil
}

func (q *query) First(ctx context.Context) (core.Item, error) {
	limited := *q
	limited.limit = 1
	limited.offset = 0
	items, err := limited.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// propertiesDocument extracts the dynamic part of an item, i.e.
// everything that does not live in its own column.
func (q *query) propertiesDocument(item core.Item) ([]byte, error) {
	document := core.Item{}
	for column, value := range item {
		if column == "timestamp" || q.isSystemColumn(column) {
			continue
		}
		document[column] = value
	}
	body, err := json.Marshal(document)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal properties")
	}
	return body, nil
}

func (q *query) Insert(ctx context.Context, item core.Item) (core.Item, error) {
	idColumn := q.model.ID()
	id, ok := parseUUID(item[idColumn])
	if !ok {
		id = uuid.New().String()
	}
	properties, err := q.propertiesDocument(item)
	if err != nil {
		return nil, err
	}

	columns := []string{`"` + idColumn + `"`, "properties"}
	args := []interface{}{id, properties}
	var ownerID string
	if q.related {
		ownerID, ok = parseUUID(q.owner[q.ownerModel.ID()])
		if !ok {
			return nil, core.BadRequest("resource does not exist")
		}
		if q.rel.Kind == core.HasMany {
			columns = append(columns, `"`+q.rel.Owner+`_id"`)
			args = append(args, ownerID)
		}
	}
	values := make([]string, len(args))
	for i := range args {
		values[i] = fmt.Sprintf("$%d", i+1)
	}
	sqlQuery := "INSERT INTO " + q.src.tableExpression(q.model.Table) +
		" (" + strings.Join(columns, ", ") + ") VALUES(" + strings.Join(values, ", ") +
		`) RETURNING "timestamp";`

	var timestamp time.Time
	err = q.q.QueryRowContext(ctx, sqlQuery, args...).Scan(&timestamp)
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique violation: the id exists, the insert is idempotent
			return q.src.Query(q.q, q.model).Where(idColumn, id).First(ctx)
		case "23503": // foreign key violation
			return nil, core.BadRequest("resource does not exist")
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot insert into `%s`", q.model.Table)
	}

	if q.related {
		switch q.rel.Kind {
		case core.ManyToMany:
			if err := q.insertJoin(ctx, ownerID, id); err != nil {
				return nil, err
			}
		case core.BelongsToOne:
			if err := q.setPointer(ctx, ownerID, id); err != nil {
				return nil, err
			}
		}
	}

	return q.src.Query(q.q, q.model).Where(idColumn, id).First(ctx)
}

func (q *query) insertJoin(ctx context.Context, ownerID, relatedID string) error {
	sqlQuery := "INSERT INTO " + q.src.tableExpression(q.rel.Owner+":"+q.rel.Name) +
		` ("` + q.rel.Owner + `_id", "` + q.rel.Target + `_id") VALUES($1, $2);`
	_, err := q.q.ExecContext(ctx, sqlQuery, ownerID, relatedID)
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // the pair exists, relating twice is not an error
			return nil
		case "23503":
			return core.BadRequest("resource does not exist")
		}
	}
	return errors.Wrapf(err, "cannot relate `%s`", q.rel.Name)
}

func (q *query) setPointer(ctx context.Context, ownerID, relatedID string) error {
	sqlQuery := "UPDATE " + q.src.tableExpression(q.rel.Owner) +
		` SET "` + q.rel.Name + `_id" = $1 WHERE "` + q.ownerModel.ID() + `" = $2;`
	_, err := q.q.ExecContext(ctx, sqlQuery, relatedID, ownerID)
	return errors.Wrapf(err, "cannot set pointer for `%s`", q.rel.Name)
}

func (q *query) mutate(ctx context.Context, set string, args []interface{}) (int64, error) {
	clauses := q.whereClauses(&args)
	if q.impossible {
		return 0, nil
	}
	sqlQuery := "UPDATE " + q.src.tableExpression(q.model.Table) + " SET " + set
	if len(clauses) > 0 {
		sqlQuery += " WHERE " + strings.Join(clauses, " AND ")
	}
	result, err := q.q.ExecContext(ctx, sqlQuery+";", args...)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot update `%s`", q.model.Table)
	}
	total, err := result.RowsAffected()
	return total, errors.Wrapf(err, "cannot update `%s`", q.model.Table)
}

func (q *query) Update(ctx context.Context, item core.Item) (int64, error) {
	properties, err := q.propertiesDocument(item)
	if err != nil {
		return 0, err
	}
	return q.mutate(ctx, `properties = $1::jsonb, "timestamp" = now()`, []interface{}{properties})
}

func (q *query) Patch(ctx context.Context, item core.Item) (int64, error) {
	properties, err := q.propertiesDocument(item)
	if err != nil {
		return 0, err
	}
	return q.mutate(ctx, `properties = properties || $1::jsonb, "timestamp" = now()`, []interface{}{properties})
}

func (q *query) Delete(ctx context.Context) (int64, error) {
	var args []interface{}
	clauses := q.whereClauses(&args)
	if q.impossible {
		return 0, nil
	}
	sqlQuery := "DELETE FROM " + q.src.tableExpression(q.model.Table)
	if len(clauses) > 0 {
		sqlQuery += " WHERE " + strings.Join(clauses, " AND ")
	}
	result, err := q.q.ExecContext(ctx, sqlQuery+";", args...)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot delete from `%s`", q.model.Table)
	}
	total, err := result.RowsAffected()
	return total, errors.Wrapf(err, "cannot delete from `%s`", q.model.Table)
}

// Relate attaches an already existing record by id; the relation must
// be many-to-many. Relating twice is not an error.
func (q *query) Relate(ctx context.Context, id interface{}) error {
	if !q.related || q.rel.Kind != core.ManyToMany {
		return core.BadRequest("relation " + q.rel.Name + " cannot relate existing records")
	}
	relatedID, ok := parseUUID(id)
	if !ok {
		return core.BadRequest("resource does not exist")
	}
	ownerID, ok := parseUUID(q.owner[q.ownerModel.ID()])
	if !ok {
		return core.BadRequest("resource does not exist")
	}
	return q.insertJoin(ctx, ownerID, relatedID)
}
