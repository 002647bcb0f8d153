package memdata

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/relabs-tech/restgen/core"
)

// findByID must be called with the store lock held.
func (s *Source) findByID(table string, id interface{}) core.Item {
	idColumn := s.models[table].ID()
	for _, row := range s.store.tables[table] {
		if core.EqualIDs(row[idColumn], id) {
			return row
		}
	}
	return nil
}

func (s *Source) setPointer(table string, id interface{}, column string, value interface{}) error {
	row := s.findByID(table, id)
	if row == nil {
		return core.BadRequest("resource does not exist")
	}
	row[column] = value
	return nil
}

// deleteRow removes the row and cascades through the relation wiring:
// has-many children are deleted recursively, join pairs are dropped and
// belongs-to-one pointers are cleared.
func (s *Source) deleteRow(table string, row core.Item) {
	idColumn := s.models[table].ID()
	id := row[idColumn]

	rows := s.store.tables[table]
	for i := range rows {
		if core.EqualIDs(rows[i][idColumn], id) {
			s.store.tables[table] = append(rows[:i], rows[i+1:]...)
			break
		}
	}

	for _, m := range s.models {
		for _, rel := range m.Relations {
			switch rel.Kind {
			case core.HasMany:
				if rel.Owner != table {
					continue
				}
				fk := foreignKey(rel)
				var children []core.Item
				for _, child := range s.store.tables[rel.Target] {
					if core.EqualIDs(child[fk], id) {
						children = append(children, child)
					}
				}
				for _, child := range children {
					s.deleteRow(rel.Target, child)
				}
			case core.ManyToMany:
				key := joinKey(rel)
				pairs := s.store.joins[key][:0]
				for _, pair := range s.store.joins[key] {
					if rel.Owner == table && core.EqualIDs(pair.owner, id) {
						continue
					}
					if rel.Target == table && core.EqualIDs(pair.related, id) {
						continue
					}
					pairs = append(pairs, pair)
				}
				s.store.joins[key] = pairs
			case core.BelongsToOne:
				if rel.Target != table {
					continue
				}
				pointer := pointerKey(rel)
				for _, owner := range s.store.tables[rel.Owner] {
					if core.EqualIDs(owner[pointer], id) {
						owner[pointer] = nil
					}
				}
			}
		}
	}
}

// export copies the row and attaches the requested eager relations,
// enforcing the model's allow-list. Must be called with the store lock
// held.
func (q *query) export(row core.Item) (core.Item, error) {
	item := copyItem(row)
	for _, path := range q.eager {
		allowed := false
		for _, candidate := range q.model.AllowEager {
			if candidate == path {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, core.BadRequest("eager path '" + path + "' not allowed")
		}
		rel, ok := q.model.RelationByName(path)
		if !ok {
			return nil, core.BadRequest("eager path '" + path + "' is not a relation")
		}
		sub := &query{
			src:        q.src,
			model:      q.src.model(rel.Target),
			related:    true,
			owner:      row,
			ownerModel: q.model,
			rel:        rel,
			limit:      -1,
		}
		indices, err := sub.matched()
		if err != nil {
			return nil, err
		}
		related := q.src.store.tables[rel.Target]
		if rel.Kind.ToOne() {
			if len(indices) > 0 {
				item[path] = copyItem(related[indices[0]])
			} else {
				item[path] = nil
			}
			continue
		}
		list := make([]core.Item, 0, len(indices))
		for _, i := range indices {
			list = append(list, copyItem(related[i]))
		}
		item[path] = list
	}
	return item, nil
}

func likeMatch(pattern, value interface{}) bool {
	expr := regexp.QuoteMeta(fmt.Sprintf("%v", pattern))
	expr = strings.ReplaceAll(expr, "%", ".*")
	expr = strings.ReplaceAll(expr, "_", ".")
	matched, err := regexp.MatchString("^"+expr+"$", fmt.Sprintf("%v", value))
	return err == nil && matched
}

func lessValues(a, b interface{}) bool {
	ca, _ := core.CanonicalID(a)
	cb, _ := core.CanonicalID(b)
	fa, errA := strconv.ParseFloat(ca, 64)
	fb, errB := strconv.ParseFloat(cb, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return ca < cb
}

func sortIndices(rows []core.Item, indices []int, order *orderSpec) {
	sort.SliceStable(indices, func(i, j int) bool {
		less := lessValues(rows[indices[i]][order.column], rows[indices[j]][order.column])
		if order.ascending {
			return less
		}
		return !less && !core.EqualIDs(rows[indices[i]][order.column], rows[indices[j]][order.column])
	})
}
