// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package rest_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/memdata"
	"github.com/relabs-tech/restgen/core/rest"
)

func testModels() []core.Model {
	return []core.Model{
		{
			Table: "author",
			Relations: []core.Relation{
				{Name: "books", Kind: core.HasMany, Target: "book"},
			},
			AllowEager: []string{"books"},
		},
		{
			Table: "book",
			Relations: []core.Relation{
				{Name: "author", Kind: core.BelongsToOne, Target: "author"},
				{Name: "tags", Kind: core.ManyToMany, Target: "tag"},
			},
			AllowEager: []string{"author", "tags"},
		},
		{
			Table: "tag",
		},
	}
}

type route struct {
	method string
	path   string
}

func routesOf(api *rest.API) []route {
	routes := []route{}
	for _, ep := range api.Endpoints() {
		routes = append(routes, route{ep.Method, ep.Path})
	}
	return routes
}

func TestEndpointGeneration(t *testing.T) {
	models := testModels()
	api := rest.New(&rest.Builder{
		Models:    models,
		Source:    memdata.New(models...),
		Pluralize: core.Plural,
	})
	routes := routesOf(api)

	// the eight collection and item endpoints, in generation order
	tagRoutes := []route{
		{http.MethodPost, "/tags"},
		{http.MethodGet, "/tags"},
		{http.MethodPatch, "/tags"},
		{http.MethodDelete, "/tags"},
		{http.MethodGet, "/tags/{id}"},
		{http.MethodPut, "/tags/{id}"},
		{http.MethodPatch, "/tags/{id}"},
		{http.MethodDelete, "/tags/{id}"},
	}
	assert.Equal(t, tagRoutes, routes[len(routes)-8:])

	// has-many: no attach of existing records
	assert.Contains(t, routes, route{http.MethodPost, "/authors/{id}/books"})
	assert.Contains(t, routes, route{http.MethodGet, "/authors/{id}/books"})
	assert.Contains(t, routes, route{http.MethodPut, "/authors/{id}/books"})
	assert.Contains(t, routes, route{http.MethodDelete, "/authors/{id}/books"})
	assert.NotContains(t, routes, route{http.MethodPost, "/authors/{id}/books/{related_id}"})

	// belongs-to-one: a singular slot has no collection replace
	assert.Contains(t, routes, route{http.MethodGet, "/books/{id}/author"})
	assert.NotContains(t, routes, route{http.MethodPut, "/books/{id}/author"})

	// many-to-many: full set including relate
	assert.Contains(t, routes, route{http.MethodPut, "/books/{id}/tags"})
	assert.Contains(t, routes, route{http.MethodPost, "/books/{id}/tags/{related_id}"})

	// 8 per model, plus 4 (has-many), 3 (belongs-to-one), 5 (many-to-many)
	assert.Len(t, routes, 3*8+4+3+5)
}

func TestEndpointGenerationExclusions(t *testing.T) {
	models := testModels()
	api := rest.New(&rest.Builder{
		Models:    models,
		Source:    memdata.New(models...),
		Pluralize: core.Plural,
		Exclusions: []rest.Exclusion{
			{Method: "delete", Route: "/authors"},            // method match is case-insensitive
			{Method: http.MethodPut, Route: "/books/*"},      // pattern
			{Method: http.MethodPost, Route: "/books/*/tags"}, // pattern with midsection
		},
	})
	routes := routesOf(api)

	assert.NotContains(t, routes, route{http.MethodDelete, "/authors"})
	assert.NotContains(t, routes, route{http.MethodPut, "/books/{id}"})
	assert.NotContains(t, routes, route{http.MethodPost, "/books/{id}/tags"})
	// unrelated endpoints survive
	assert.Contains(t, routes, route{http.MethodDelete, "/authors/{id}"})
	assert.Contains(t, routes, route{http.MethodGet, "/books/{id}"})
	assert.Contains(t, routes, route{http.MethodPost, "/books/{id}/tags/{related_id}"})
}

func TestEndpointGenerationPrefixAndPluralizer(t *testing.T) {
	models := []core.Model{{Table: "story"}, {Table: "user_account"}}
	api := rest.New(&rest.Builder{
		Models:    models,
		Source:    memdata.New(models...),
		Prefix:    "/v1",
		Pluralize: core.Plural,
	})
	routes := routesOf(api)
	assert.Contains(t, routes, route{http.MethodGet, "/v1/stories"})
	assert.Contains(t, routes, route{http.MethodGet, "/v1/userAccounts/{id}"})

	// the default pluralizer simply appends an "s"
	api = rest.New(&rest.Builder{
		Models: models,
		Source: memdata.New(models...),
	})
	routes = routesOf(api)
	assert.Contains(t, routes, route{http.MethodGet, "/storys"})
}

func TestBuilderLeavesModelsUntouched(t *testing.T) {
	models := testModels()
	rest.New(&rest.Builder{
		Models:    models,
		Source:    memdata.New(models...),
		Pluralize: core.Plural,
	})

	// normalization happens on the builder's own copy
	assert.Empty(t, models[0].Relations[0].Owner)
	assert.Empty(t, models[1].Relations[0].Owner)
	assert.Empty(t, models[1].Relations[1].Owner)
}

func TestBuilderPanics(t *testing.T) {
	models := testModels()
	require.Panics(t, func() {
		rest.New(&rest.Builder{Models: models})
	}, "source is mandatory")
	require.Panics(t, func() {
		rest.New(&rest.Builder{Source: memdata.New(models...)})
	}, "models are mandatory")
	require.Panics(t, func() {
		broken := []core.Model{{
			Table:     "a",
			Relations: []core.Relation{{Name: "others", Kind: core.HasMany, Target: "nope"}},
		}}
		rest.New(&rest.Builder{Models: broken, Source: memdata.New(broken...)})
	}, "relation target must be registered")
	require.Panics(t, func() {
		dup := []core.Model{{Table: "a"}, {Table: "a"}}
		rest.New(&rest.Builder{Models: dup, Source: memdata.New(dup...)})
	}, "duplicate table")
}
