// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package muxadapter_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/muxadapter"
	"github.com/relabs-tech/restgen/core/rest"
)

func newAdapter() (*muxadapter.Adapter, *mux.Router) {
	router := mux.NewRouter()
	return muxadapter.New(router), router
}

func TestHandleSuccess(t *testing.T) {
	a, router := newAdapter()
	a.Handle(rest.Endpoint{
		Method:        http.MethodPost,
		Path:          "/things/{id}",
		SuccessStatus: http.StatusCreated,
		Handler: func(ctx context.Context, r *rest.Request) (interface{}, error) {
			item := core.Item{}
			require.NoError(t, json.Unmarshal(r.Body, &item))
			item["id"] = r.Params["id"]
			item["verbose"] = r.Query.Get("verbose")
			return item, nil
		},
	})

	cl := core.NewClient(router)
	result := core.Item{}
	status, err := cl.Post("/things/4711?verbose=yes", core.Item{"name": "a"}, &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "4711", result["id"])
	assert.Equal(t, "yes", result["verbose"])
	assert.Equal(t, "a", result["name"])
}

func TestHandleStatusError(t *testing.T) {
	a, router := newAdapter()
	a.Handle(rest.Endpoint{
		Method:        http.MethodGet,
		Path:          "/things/{id}",
		SuccessStatus: http.StatusOK,
		Handler: func(ctx context.Context, r *rest.Request) (interface{}, error) {
			return nil, core.NotFound("thing")
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/things/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	body := map[string]string{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no such thing", body["error"])
}

func TestHandleInternalError(t *testing.T) {
	a, router := newAdapter()
	a.Handle(rest.Endpoint{
		Method:        http.MethodGet,
		Path:          "/things",
		SuccessStatus: http.StatusOK,
		Handler: func(ctx context.Context, r *rest.Request) (interface{}, error) {
			return nil, fmt.Errorf("database gone")
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/things", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleMethodFilter(t *testing.T) {
	a, router := newAdapter()
	a.Handle(rest.Endpoint{
		Method:        http.MethodDelete,
		Path:          "/things",
		SuccessStatus: http.StatusOK,
		Handler: func(ctx context.Context, r *rest.Request) (interface{}, error) {
			return core.Item{}, nil
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/things", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
