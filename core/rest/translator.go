// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package rest

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/restgen/core"
)

func decodeItem(body json.RawMessage) (core.Item, error) {
	var item core.Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, core.BadRequest("invalid json data: " + err.Error())
	}
	if item == nil {
		return nil, core.BadRequest("invalid json data: object expected")
	}
	return item, nil
}

func decodeItems(body json.RawMessage) ([]core.Item, error) {
	var items []core.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, core.BadRequest("invalid json data: " + err.Error())
	}
	return items, nil
}

func stripKey(item core.Item, key string) core.Item {
	stripped := make(core.Item, len(item))
	for k, v := range item {
		if k != key {
			stripped[k] = v
		}
	}
	return stripped
}

// applyEager passes the client-requested eager path(s) through to the
// query unfiltered; the persistence collaborator enforces the model's
// allow-list and fails on violations.
func applyEager(q core.Query, r *Request) core.Query {
	for _, path := range r.Query["eager"] {
		q = q.Eager(path)
	}
	return q
}

// create handles POST on the collection.
func (a *API) create(m core.Model) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		item, err := decodeItem(r.Body)
		if err != nil {
			return nil, err
		}
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		var created core.Item
		err = a.source.Transaction(ctx, cn, func(tx core.Conn) error {
			created, err = a.source.Query(tx, m).Insert(ctx, item)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.notify(ctx, m.Table, core.OperationCreate, created)
		return created, nil
	}
}

// list handles GET on the collection and delegates filter, sort and
// pagination entirely to the model's finder.
func (a *API) list(m core.Model) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		q, err := a.finders[m.Table].Build(r.Query, a.source.Query(cn, m))
		if err != nil {
			return nil, err
		}
		items, err := q.List(ctx)
		if err != nil {
			return nil, err
		}
		return items, nil
	}
}

// patchMany handles PATCH on the collection: bulk patch matching a
// filter, returning the affected row count.
func (a *API) patchMany(m core.Model) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		item, err := decodeItem(r.Body)
		if err != nil {
			return nil, err
		}
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		q, err := a.finders[m.Table].Filter(r.Query, a.source.Query(cn, m))
		if err != nil {
			return nil, err
		}
		total, err := q.Patch(ctx, stripKey(item, m.ID()))
		if err != nil {
			return nil, err
		}
		a.notify(ctx, m.Table, core.OperationPatch, core.Item{"total": total})
		return core.Item{"total": total}, nil
	}
}

// clear handles DELETE on the collection: bulk delete matching a
// filter, returning the affected row count.
func (a *API) clear(m core.Model) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		q, err := a.finders[m.Table].Filter(r.Query, a.source.Query(cn, m))
		if err != nil {
			return nil, err
		}
		total, err := q.Delete(ctx)
		if err != nil {
			return nil, err
		}
		a.notify(ctx, m.Table, core.OperationClear, core.Item{"total": total})
		return core.Item{"total": total}, nil
	}
}

// read handles GET on the item.
func (a *API) read(m core.Model) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		q := a.source.Query(cn, m).Where(m.ID(), r.Params["id"])
		item, err := applyEager(q, r).First(ctx)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, core.NotFound(m.Table)
		}
		return item, nil
	}
}

// writeItem implements PUT (full update) and PATCH (partial update) on
// the item. The row is re-fetched by id after the write, honoring
// eager loading; if the re-fetch yields nothing the operation fails
// with NotFound even when the write itself matched a row. This allows
// eager relations to be attached to the response of a write.
func (a *API) writeItem(m core.Model, op core.Operation) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		item, err := decodeItem(r.Body)
		if err != nil {
			return nil, err
		}
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		q := a.source.Query(cn, m).Where(m.ID(), r.Params["id"])
		if op == core.OperationReplace {
			_, err = q.Update(ctx, stripKey(item, m.ID()))
		} else {
			_, err = q.Patch(ctx, stripKey(item, m.ID()))
		}
		if err != nil {
			return nil, err
		}
		refetch := a.source.Query(cn, m).Where(m.ID(), r.Params["id"])
		current, err := applyEager(refetch, r).First(ctx)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, core.NotFound(m.Table)
		}
		a.notify(ctx, m.Table, op, current)
		return current, nil
	}
}

func (a *API) replace(m core.Model) Handler {
	return a.writeItem(m, core.OperationReplace)
}

func (a *API) update(m core.Model) Handler {
	return a.writeItem(m, core.OperationUpdate)
}

// delete handles DELETE on the item. Delete-if-exists is idempotent,
// so a missing row is not an error.
func (a *API) delete(m core.Model) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		var total int64
		err = a.source.Transaction(ctx, cn, func(tx core.Conn) error {
			total, err = a.source.Query(tx, m).Where(m.ID(), r.Params["id"]).Delete(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		if total > 0 {
			a.notify(ctx, m.Table, core.OperationDelete, core.Item{m.ID(): r.Params["id"]})
		}
		return core.Item{}, nil
	}
}

func (a *API) fetchOwner(ctx context.Context, cn core.Conn, m core.Model, r *Request) (core.Item, error) {
	owner, err := a.source.Query(cn, m).Where(m.ID(), r.Params["id"]).First(ctx)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, core.NotFound(m.Table)
	}
	return owner, nil
}

// relationCreate handles POST on the relation: create a related record
// and attach it to the owner.
func (a *API) relationCreate(m core.Model, rel core.Relation) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		item, err := decodeItem(r.Body)
		if err != nil {
			return nil, err
		}
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		var created core.Item
		err = a.source.Transaction(ctx, cn, func(tx core.Conn) error {
			owner, err := a.fetchOwner(ctx, tx, m, r)
			if err != nil {
				return err
			}
			created, err = a.source.Related(tx, owner, m, rel).Insert(ctx, item)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.notify(ctx, m.Table+"/"+rel.Name, core.OperationCreate, created)
		return created, nil
	}
}

// relationList handles GET on the relation. A belongs-to-one relation
// yields a single object or null instead of a list.
func (a *API) relationList(m core.Model, rel core.Relation) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		owner, err := a.fetchOwner(ctx, cn, m, r)
		if err != nil {
			return nil, err
		}
		rq := a.source.Related(cn, owner, m, rel)
		if rel.Kind.ToOne() {
			item, err := applyEager(rq, r).First(ctx)
			if err != nil {
				return nil, err
			}
			// null, not 404: the owner exists, its slot is empty
			return item, nil
		}
		q, err := a.finders[rel.Target].Build(r.Query, rq)
		if err != nil {
			return nil, err
		}
		items, err := q.List(ctx)
		if err != nil {
			return nil, err
		}
		return items, nil
	}
}

// relationClear handles DELETE on the relation: delete all currently
// related records.
func (a *API) relationClear(m core.Model, rel core.Relation) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		err = a.source.Transaction(ctx, cn, func(tx core.Conn) error {
			owner, err := a.fetchOwner(ctx, tx, m, r)
			if err != nil {
				return err
			}
			_, err = a.source.Related(tx, owner, m, rel).Delete(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.notify(ctx, m.Table+"/"+rel.Name, core.OperationClear, core.Item{m.ID(): r.Params["id"]})
		return core.Item{}, nil
	}
}

// relationReplace handles PUT on the relation: reconcile the submitted
// collection against the relation's current members. The batched
// delete runs first so that a freed identifier cannot collide with a
// fresh insert; partial reconciliation is never committed.
func (a *API) relationReplace(m core.Model, rel core.Relation) Handler {
	targetID := a.models[rel.Target].ID()
	return func(ctx context.Context, r *Request) (interface{}, error) {
		submitted, err := decodeItems(r.Body)
		if err != nil {
			return nil, err
		}
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		var result []core.Item
		err = a.source.Transaction(ctx, cn, func(tx core.Conn) error {
			owner, err := a.fetchOwner(ctx, tx, m, r)
			if err != nil {
				return err
			}
			current, err := a.source.Related(tx, owner, m, rel).List(ctx)
			if err != nil {
				return err
			}
			plan := Reconcile(current, submitted, targetID)

			if ids := plan.DeleteIDs(targetID); len(ids) > 0 {
				_, err = a.source.Related(tx, owner, m, rel).WhereIn(targetID, ids).Delete(ctx)
				if err != nil {
					return err
				}
			}
			for _, item := range plan.Update {
				_, err = a.source.Related(tx, owner, m, rel).
					Where(targetID, item[targetID]).
					Patch(ctx, stripKey(item, targetID))
				if err != nil {
					return err
				}
			}
			for _, item := range plan.Insert {
				// identifiers are server-assigned on insert
				_, err = a.source.Related(tx, owner, m, rel).Insert(ctx, stripKey(item, targetID))
				if err != nil {
					return err
				}
			}

			result, err = a.source.Related(tx, owner, m, rel).List(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		a.notify(ctx, m.Table+"/"+rel.Name, core.OperationReplace, result)
		return result, nil
	}
}

// relate handles POST on the relation item: attach an already existing
// related record by id. The related_id path parameter is passed to the
// relation-attach primitive verbatim.
func (a *API) relate(m core.Model, rel core.Relation) Handler {
	return func(ctx context.Context, r *Request) (interface{}, error) {
		cn, err := a.conn(ctx, r)
		if err != nil {
			return nil, err
		}
		err = a.source.Transaction(ctx, cn, func(tx core.Conn) error {
			owner, err := a.fetchOwner(ctx, tx, m, r)
			if err != nil {
				return err
			}
			return a.source.Related(tx, owner, m, rel).Relate(ctx, r.Params["related_id"])
		})
		if err != nil {
			return nil, err
		}
		a.notify(ctx, m.Table+"/"+rel.Name, core.OperationRelate,
			core.Item{m.ID(): r.Params["id"], "related_id": r.Params["related_id"]})
		return core.Item{}, nil
	}
}
