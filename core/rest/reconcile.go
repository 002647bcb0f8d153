// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package rest

import (
	"github.com/relabs-tech/restgen/core"
)

// Plan is the result of reconciling a submitted collection against a
// relation's current members: three disjoint sets of items to insert,
// to update and to delete. A Plan is constructed and discarded within
// a single request.
type Plan struct {
	Insert []core.Item
	Update []core.Item
	Delete []core.Item
}

// DeleteIDs returns the identifier values of the members slated for
// deletion, suitable for a single batched delete-by-id-list.
func (p Plan) DeleteIDs(idKey string) []interface{} {
	ids := make([]interface{}, 0, len(p.Delete))
	for _, item := range p.Delete {
		ids = append(ids, item[idKey])
	}
	return ids
}

// Reconcile classifies the submitted items against the current members
// of a relation, comparing identifiers with the coercing semantics of
// core.EqualIDs so that string ids from the wire match their stored
// numeric counterparts.
//
// A submitted item with no identifier, or with an identifier matching
// no current member, is an insert. A submitted item whose identifier
// matches a current member is an update. A current member matched by
// no submitted item is a delete. Insert and update partition the
// submitted set exactly; delete is disjoint from both.
func Reconcile(current, submitted []core.Item, idKey string) Plan {
	index := map[string]core.Item{}
	for _, member := range current {
		if key, ok := core.CanonicalID(member[idKey]); ok {
			index[key] = member
		}
	}

	var plan Plan
	matched := map[string]bool{}
	for _, item := range submitted {
		key, ok := core.CanonicalID(item[idKey])
		if ok {
			if _, exists := index[key]; exists {
				plan.Update = append(plan.Update, item)
				matched[key] = true
				continue
			}
		}
		plan.Insert = append(plan.Insert, item)
	}

	for _, member := range current {
		key, ok := core.CanonicalID(member[idKey])
		if ok && matched[key] {
			continue
		}
		plan.Delete = append(plan.Delete, member)
	}
	return plan
}
