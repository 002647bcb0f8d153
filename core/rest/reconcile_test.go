// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/restgen/core"
)

func TestReconcile(t *testing.T) {
	current := []core.Item{
		{"id": 34, "name": "A"},
		{"id": 37, "name": "B"},
	}
	submitted := []core.Item{
		{"id": "34", "name": "A2"}, // matches current 34, stringified by the wire
		{"id": 99999, "name": "C"}, // unknown id, still an insert
		{"name": "D"},              // no id at all
	}

	plan := Reconcile(current, submitted, "id")

	assert.Equal(t, []core.Item{{"id": "34", "name": "A2"}}, plan.Update)
	assert.Equal(t, []core.Item{{"id": 99999, "name": "C"}, {"name": "D"}}, plan.Insert)
	assert.Equal(t, []core.Item{{"id": 37, "name": "B"}}, plan.Delete)
	assert.Equal(t, []interface{}{37}, plan.DeleteIDs("id"))

	// insert and update partition the submitted set
	assert.Len(t, plan.Insert, len(submitted)-len(plan.Update))
}

func TestReconcileEmptySides(t *testing.T) {
	current := []core.Item{{"id": 1}, {"id": 2}}

	plan := Reconcile(current, nil, "id")
	assert.Empty(t, plan.Insert)
	assert.Empty(t, plan.Update)
	assert.Len(t, plan.Delete, 2)

	// with no current members everything submitted is an insert, even
	// items carrying an id
	plan = Reconcile(nil, current, "id")
	assert.Len(t, plan.Insert, 2)
	assert.Empty(t, plan.Update)
	assert.Empty(t, plan.Delete)
}

func TestReconcileIdempotent(t *testing.T) {
	current := []core.Item{
		{"id": "f17c3dd6-7d0a-4140-8a39-0dad1f16c1a5", "name": "A"},
		{"id": "6c1b4b4e-19b7-4b9f-bf2c-8567a6ac0a27", "name": "B"},
	}
	// submitting the current state plans no mutations at all
	plan := Reconcile(current, current, "id")
	assert.Empty(t, plan.Insert)
	assert.Empty(t, plan.Delete)
	assert.Equal(t, current, plan.Update)
}
