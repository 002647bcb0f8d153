package memdata

import (
	"context"
	"strconv"

	"github.com/relabs-tech/restgen/core"
)

type cond struct {
	column  string
	value   interface{}
	like    bool
	in      []interface{}
	batched bool
}

type orderSpec struct {
	column    string
	ascending bool
}

type query struct {
	src        *Source
	conn       core.Conn
	model      core.Model
	related    bool
	owner      core.Item
	ownerModel core.Model
	rel        core.Relation
	conds      []cond
	eager      []string
	order      *orderSpec
	limit      int
	offset     int
}

func (q *query) Where(column string, value interface{}) core.Query {
	q.conds = append(q.conds, cond{column: column, value: value})
	return q
}

func (q *query) WhereIn(column string, values []interface{}) core.Query {
	q.conds = append(q.conds, cond{column: column, in: values, batched: true})
	return q
}

func (q *query) WhereLike(column string, pattern string) core.Query {
	q.conds = append(q.conds, cond{column: column, value: pattern, like: true})
	return q
}

func (q *query) Eager(path string) core.Query {
	q.eager = append(q.eager, path)
	return q
}

func (q *query) Order(column string, ascending bool) core.Query {
	q.order = &orderSpec{column: column, ascending: ascending}
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

func (c cond) matches(row core.Item) bool {
	value, ok := row[c.column]
	if !ok {
		return false
	}
	if c.batched {
		for _, candidate := range c.in {
			if core.EqualIDs(value, candidate) {
				return true
			}
		}
		return false
	}
	if c.like {
		return likeMatch(c.value, value)
	}
	return core.EqualIDs(value, c.value)
}

// candidates returns the indices of the rows in scope: the whole table,
// or the owner's relation members for a related query.
func (q *query) candidates() ([]int, error) {
	rows := q.src.store.tables[q.model.Table]
	if !q.related {
		indices := make([]int, 0, len(rows))
		for i := range rows {
			indices = append(indices, i)
		}
		return indices, nil
	}

	ownerID := q.owner[q.ownerModel.ID()]
	var indices []int
	switch q.rel.Kind {
	case core.HasMany:
		fk := foreignKey(q.rel)
		for i, row := range rows {
			if core.EqualIDs(row[fk], ownerID) {
				indices = append(indices, i)
			}
		}
	case core.BelongsToOne:
		// re-read the owner, its pointer may have changed since it was fetched
		current := q.src.findByID(q.ownerModel.Table, ownerID)
		if current == nil {
			return nil, nil
		}
		pointer := current[pointerKey(q.rel)]
		if pointer == nil {
			return nil, nil
		}
		for i, row := range rows {
			if core.EqualIDs(row[q.model.ID()], pointer) {
				indices = append(indices, i)
			}
		}
	case core.ManyToMany:
		pairs := q.src.store.joins[joinKey(q.rel)]
		for i, row := range rows {
			for _, pair := range pairs {
				if core.EqualIDs(pair.owner, ownerID) && core.EqualIDs(pair.related, row[q.model.ID()]) {
					indices = append(indices, i)
					break
				}
			}
		}
	}
	return indices, nil
}

func (q *query) matched() ([]int, error) {
	indices, err := q.candidates()
	if err != nil {
		return nil, err
	}
	rows := q.src.store.tables[q.model.Table]
	filtered := indices[:0]
	for _, i := range indices {
		ok := true
		for _, c := range q.conds {
			if !c.matches(rows[i]) {
				ok = false
				break
			}
		}
		if ok {
			filtered = append(filtered, i)
		}
	}
	if q.order != nil {
		sortIndices(rows, filtered, q.order)
	}
	if q.offset > 0 {
		if q.offset >= len(filtered) {
			filtered = filtered[:0]
		} else {
			filtered = filtered[q.offset:]
		}
	}
	if q.limit >= 0 && q.limit < len(filtered) {
		filtered = filtered[:q.limit]
	}
	return filtered, nil
}

func (q *query) First(ctx context.Context) (core.Item, error) {
	unlock := q.src.lock(q.conn)
	defer unlock()
	indices, err := q.matched()
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, nil
	}
	return q.export(q.src.store.tables[q.model.Table][indices[0]])
}

func (q *query) List(ctx context.Context) ([]core.Item, error) {
	unlock := q.src.lock(q.conn)
	defer unlock()
	indices, err := q.matched()
	if err != nil {
		return nil, err
	}
	rows := q.src.store.tables[q.model.Table]
	items := make([]core.Item, 0, len(indices))
	for _, i := range indices {
		item, err := q.export(rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (q *query) Insert(ctx context.Context, item core.Item) (core.Item, error) {
	unlock := q.src.lock(q.conn)
	defer unlock()

	row := copyItem(item)
	idColumn := q.model.ID()
	if key, ok := core.CanonicalID(row[idColumn]); ok {
		if existing := q.src.findByID(q.model.Table, row[idColumn]); existing != nil {
			// the id exists, the insert is idempotent
			return q.export(existing)
		}
		// keep server-assigned ids clear of client-supplied ones
		if n, err := strconv.ParseInt(key, 10, 64); err == nil && n > q.src.store.nextID {
			q.src.store.nextID = n
		}
	} else {
		q.src.store.nextID++
		row[idColumn] = q.src.store.nextID
	}

	if q.related {
		ownerID := q.owner[q.ownerModel.ID()]
		switch q.rel.Kind {
		case core.HasMany:
			row[foreignKey(q.rel)] = ownerID
		case core.ManyToMany:
			key := joinKey(q.rel)
			q.src.store.joins[key] = append(q.src.store.joins[key],
				joinPair{owner: ownerID, related: row[idColumn]})
		case core.BelongsToOne:
			if err := q.src.setPointer(q.ownerModel.Table, ownerID, pointerKey(q.rel), row[idColumn]); err != nil {
				return nil, err
			}
		}
	}

	q.src.store.tables[q.model.Table] = append(q.src.store.tables[q.model.Table], row)
	return q.export(row)
}

func (q *query) Update(ctx context.Context, item core.Item) (int64, error) {
	unlock := q.src.lock(q.conn)
	defer unlock()
	indices, err := q.matched()
	if err != nil {
		return 0, err
	}
	keep := q.src.preserved(q.model.Table)
	rows := q.src.store.tables[q.model.Table]
	for _, i := range indices {
		row := rows[i]
		for column := range row {
			if !keep[column] {
				delete(row, column)
			}
		}
		for column, value := range item {
			if !keep[column] {
				row[column] = value
			}
		}
	}
	return int64(len(indices)), nil
}

func (q *query) Patch(ctx context.Context, item core.Item) (int64, error) {
	unlock := q.src.lock(q.conn)
	defer unlock()
	indices, err := q.matched()
	if err != nil {
		return 0, err
	}
	keep := q.src.preserved(q.model.Table)
	rows := q.src.store.tables[q.model.Table]
	for _, i := range indices {
		for column, value := range item {
			if !keep[column] {
				rows[i][column] = value
			}
		}
	}
	return int64(len(indices)), nil
}

func (q *query) Delete(ctx context.Context) (int64, error) {
	unlock := q.src.lock(q.conn)
	defer unlock()
	indices, err := q.matched()
	if err != nil {
		return 0, err
	}
	rows := q.src.store.tables[q.model.Table]
	doomed := make([]core.Item, 0, len(indices))
	for _, i := range indices {
		doomed = append(doomed, rows[i])
	}
	for _, row := range doomed {
		q.src.deleteRow(q.model.Table, row)
	}
	return int64(len(doomed)), nil
}

// Relate attaches an already existing record by id; the relation must
// be many-to-many. Relating twice is not an error.
func (q *query) Relate(ctx context.Context, id interface{}) error {
	unlock := q.src.lock(q.conn)
	defer unlock()
	if !q.related || q.rel.Kind != core.ManyToMany {
		return core.BadRequest("relation " + q.rel.Name + " cannot relate existing records")
	}
	if q.src.findByID(q.model.Table, id) == nil {
		return core.BadRequest("resource does not exist")
	}
	ownerID := q.owner[q.ownerModel.ID()]
	key := joinKey(q.rel)
	for _, pair := range q.src.store.joins[key] {
		if core.EqualIDs(pair.owner, ownerID) && core.EqualIDs(pair.related, id) {
			return nil
		}
	}
	q.src.store.joins[key] = append(q.src.store.joins[key], joinPair{owner: ownerID, related: id})
	return nil
}
