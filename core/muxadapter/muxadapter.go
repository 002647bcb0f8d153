// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package muxadapter binds generated endpoints to a gorilla/mux
// router.
package muxadapter

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/restgen/core/logger"
	"github.com/relabs-tech/restgen/core/rest"
)

// Adapter implements rest.Adapter on a mux router.
type Adapter struct {
	router *mux.Router
}

// New creates an adapter for the given router.
func New(router *mux.Router) *Adapter {
	return &Adapter{router: router}
}

// Router returns the underlying router.
func (a *Adapter) Router() *mux.Router {
	return a.router
}

type statusCoder interface {
	StatusCode() int
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if coder, ok := err.(statusCoder); ok {
		status = coder.StatusCode()
	}
	jsonData, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

// Handle registers the endpoint's route. The handler is invoked with
// the normalized request; a fulfilled result is serialized as the JSON
// response body with the endpoint's success status, an error is mapped
// to its status code or to an internal server error.
func (a *Adapter) Handle(ep rest.Endpoint) {
	a.router.HandleFunc(ep.Path, func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())
		rlog.Debugln("called route for", r.URL, r.Method)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, err)
			return
		}
		req := &rest.Request{
			Params: mux.Vars(r),
			Query:  r.URL.Query(),
			Body:   body,
		}
		payload, err := ep.Handler(r.Context(), req)
		if err != nil {
			if coder, ok := err.(statusCoder); !ok || coder.StatusCode() >= http.StatusInternalServerError {
				rlog.WithError(err).Errorln("cannot handle", r.Method, r.URL.Path)
			}
			writeError(w, err)
			return
		}
		jsonData, _ := json.MarshalWithOption(payload, json.DisableHTMLEscape())
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(ep.SuccessStatus)
		w.Write(jsonData)
	}).Methods(http.MethodOptions, ep.Method)
}
