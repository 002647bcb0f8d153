// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/finder"
	"github.com/relabs-tech/restgen/core/logger"
)

// Request is the normalized request an adapter passes to a handler:
// path parameters, query parameters and the raw JSON body.
type Request struct {
	Params map[string]string
	Query  url.Values
	Body   json.RawMessage
}

// Handler turns a normalized request into a response payload or an
// error. Errors carrying a StatusCode() are mapped to that HTTP status
// by the adapter, everything else becomes an internal server error.
type Handler func(ctx context.Context, r *Request) (interface{}, error)

// Adapter binds generated endpoints to a concrete router.
type Adapter interface {
	Handle(ep Endpoint)
}

// Resolver returns the request-scoped connection handle. It is called
// once per request; the handle is threaded explicitly through all
// persistence calls of that request.
type Resolver func(ctx context.Context, r *Request) (core.Conn, error)

// Endpoint is one generated route. The set of endpoints is fully
// determined by the registered models, their relations and the
// exclusion rules.
type Endpoint struct {
	Method        string
	Path          string
	Operation     core.Operation
	Resource      string // "book" or "book/tags"
	SuccessStatus int
	Handler       Handler
}

// Exclusion suppresses a generated endpoint. Route is either the exact
// path template or a path.Match pattern. The method comparison is
// case-insensitive. Registration order relative to the models is
// irrelevant.
type Exclusion struct {
	Method string
	Route  string
}

func (e Exclusion) matches(method, route string) bool {
	if !strings.EqualFold(e.Method, method) {
		return false
	}
	if e.Route == route {
		return true
	}
	ok, err := path.Match(e.Route, route)
	return err == nil && ok
}

// API is the generated route table bound to its collaborators.
type API struct {
	prefix     string
	pluralize  func(string) string
	exclusions []Exclusion
	source     core.Source
	finders    map[string]core.Finder
	resolver   Resolver
	notifier   core.Notifier
	models     map[string]core.Model
	endpoints  []Endpoint
}

// Builder is a builder helper for the API.
type Builder struct {
	// Models are the registered resource descriptors. This is mandatory.
	Models []core.Model
	// Source is the persistence collaborator. This is mandatory.
	Source core.Source
	// Adapter receives all generated endpoints. This is optional; the
	// endpoints can also be fetched with Endpoints() and registered
	// manually.
	Adapter Adapter
	// Prefix is the route prefix for all generated routes. Default is "/".
	Prefix string
	// Pluralize derives the collection path segment from the camel-cased
	// table name. Default appends an "s"; core.Plural produces idiomatic
	// English plurals.
	Pluralize func(string) string
	// Exclusions suppress individual endpoints.
	Exclusions []Exclusion
	// Finders overrides the filter query-builder per table. Models
	// without an entry get the default finder.
	Finders map[string]core.Finder
	// Resolver provides a per-request connection. This is optional; by
	// default all requests use the source's default connection.
	Resolver Resolver
	// Notifier receives a notification for every committed mutation.
	// This is optional.
	Notifier core.Notifier
}

// New realizes the route table for the given configuration and, if an
// adapter is set, registers all endpoints with it.
func New(bb *Builder) *API {
	if bb.Source == nil {
		panic("Source is missing")
	}
	if len(bb.Models) == 0 {
		panic("Models are missing")
	}

	a := &API{
		prefix:     strings.TrimSuffix(bb.Prefix, "/"),
		pluralize:  bb.Pluralize,
		exclusions: bb.Exclusions,
		source:     bb.Source,
		finders:    map[string]core.Finder{},
		resolver:   bb.Resolver,
		notifier:   bb.Notifier,
		models:     map[string]core.Model{},
	}
	if a.pluralize == nil {
		a.pluralize = core.AppendS
	}

	for _, m := range bb.Models {
		if m.Table == "" {
			panic("model without table name")
		}
		if _, ok := a.models[m.Table]; ok {
			panic(fmt.Sprintf("duplicate model `%s`", m.Table))
		}
		// work on a copy, the caller keeps its relation slice
		m.Relations = append([]core.Relation(nil), m.Relations...)
		for i := range m.Relations {
			m.Relations[i].Owner = m.Table
			if m.Relations[i].Name == "" {
				panic(fmt.Sprintf("model `%s` has a relation without name", m.Table))
			}
		}
		a.models[m.Table] = m
	}
	for _, m := range bb.Models {
		for _, rel := range m.Relations {
			if _, ok := a.models[rel.Target]; !ok {
				panic(fmt.Sprintf("relation `%s` of `%s` targets unknown model `%s`",
					rel.Name, m.Table, rel.Target))
			}
		}
	}
	for _, m := range bb.Models {
		if f, ok := bb.Finders[m.Table]; ok {
			a.finders[m.Table] = f
		} else {
			a.finders[m.Table] = finder.New(a.models[m.Table])
		}
	}

	a.endpoints = a.generate(bb.Models)

	if bb.Adapter != nil {
		for _, ep := range a.endpoints {
			bb.Adapter.Handle(ep)
		}
	}
	return a
}

// Endpoints returns the generated route table in its fixed generation
// order.
func (a *API) Endpoints() []Endpoint {
	eps := make([]Endpoint, len(a.endpoints))
	copy(eps, a.endpoints)
	return eps
}

func (a *API) collectionPath(m core.Model) string {
	return a.prefix + "/" + a.pluralize(core.CamelCase(m.Table))
}

func (a *API) excluded(method, route string) bool {
	for _, e := range a.exclusions {
		if e.matches(method, route) {
			return true
		}
	}
	return false
}

// generate enumerates the canonical endpoint set for every model in
// registration order: the eight collection and item endpoints, then
// the relation endpoints appropriate to each relation's kind.
func (a *API) generate(models []core.Model) []Endpoint {
	rlog := logger.Default()
	endpoints := []Endpoint{}

	add := func(method, route string, op core.Operation, resource string, status int, h Handler) {
		if a.excluded(method, route) {
			rlog.Debugln("  exclude route:", method, route)
			return
		}
		rlog.Debugln("  handle route:", method, route)
		endpoints = append(endpoints, Endpoint{
			Method:        method,
			Path:          route,
			Operation:     op,
			Resource:      resource,
			SuccessStatus: status,
			Handler:       h,
		})
	}

	for _, m := range models {
		m := a.models[m.Table] // normalized copy
		rlog.Debugln("create routes for model:", m.Table)

		listRoute := a.collectionPath(m)
		itemRoute := listRoute + "/{id}"

		add(http.MethodPost, listRoute, core.OperationCreate, m.Table, http.StatusCreated, a.create(m))
		add(http.MethodGet, listRoute, core.OperationList, m.Table, http.StatusOK, a.list(m))
		add(http.MethodPatch, listRoute, core.OperationPatch, m.Table, http.StatusOK, a.patchMany(m))
		add(http.MethodDelete, listRoute, core.OperationClear, m.Table, http.StatusOK, a.clear(m))
		add(http.MethodGet, itemRoute, core.OperationRead, m.Table, http.StatusOK, a.read(m))
		add(http.MethodPut, itemRoute, core.OperationReplace, m.Table, http.StatusOK, a.replace(m))
		add(http.MethodPatch, itemRoute, core.OperationUpdate, m.Table, http.StatusOK, a.update(m))
		add(http.MethodDelete, itemRoute, core.OperationDelete, m.Table, http.StatusOK, a.delete(m))

		for _, rel := range m.Relations {
			resource := m.Table + "/" + rel.Name
			relRoute := itemRoute + "/" + rel.Name

			add(http.MethodPost, relRoute, core.OperationCreate, resource, http.StatusCreated, a.relationCreate(m, rel))
			add(http.MethodGet, relRoute, core.OperationList, resource, http.StatusOK, a.relationList(m, rel))
			add(http.MethodDelete, relRoute, core.OperationClear, resource, http.StatusOK, a.relationClear(m, rel))
			if !rel.Kind.ToOne() {
				// a singular slot cannot be replaced as a collection
				add(http.MethodPut, relRoute, core.OperationReplace, resource, http.StatusOK, a.relationReplace(m, rel))
			}
			if rel.Kind == core.ManyToMany {
				add(http.MethodPost, relRoute+"/{related_id}", core.OperationRelate, resource, http.StatusCreated, a.relate(m, rel))
			}
		}
	}
	return endpoints
}

func (a *API) conn(ctx context.Context, r *Request) (core.Conn, error) {
	if a.resolver == nil {
		return nil, nil
	}
	return a.resolver(ctx, r)
}

func (a *API) notify(ctx context.Context, resource string, op core.Operation, payload interface{}) {
	if a.notifier == nil {
		return
	}
	jsonData, _ := json.MarshalWithOption(payload, json.DisableHTMLEscape())
	if err := a.notifier.Notify(ctx, resource, op, jsonData); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot notify", resource, op)
	}
}
