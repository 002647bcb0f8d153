package core

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"
)

// Client provides easy access to a generated REST API without going
// through a network socket.
type Client struct {
	handler http.Handler
	ctx     context.Context
}

// NewClient creates a client to make pseudo-REST requests to the
// passed handler, typically the router the routes were generated into.
func NewClient(handler http.Handler) *Client {
	return &Client{handler: handler}
}

// WithContext returns a derived client that issues requests with the
// given context.
func (c *Client) WithContext(ctx context.Context) *Client {
	return &Client{handler: c.handler, ctx: ctx}
}

func (c *Client) context() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

func (c *Client) do(method, path string, body interface{}, result interface{}, expect ...int) (int, error) {
	var reader *bytes.Buffer
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, err
		}
		reader = bytes.NewBuffer(j)
	} else {
		reader = &bytes.Buffer{}
	}
	r, _ := http.NewRequestWithContext(c.context(), method, path, reader)
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, r)

	status := rec.Code
	ok := false
	for _, e := range expect {
		ok = ok || status == e
	}
	if !ok {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, expect, rec.Body.String())
	}
	if result != nil && rec.Body.Len() > 0 {
		return status, json.Unmarshal(rec.Body.Bytes(), result)
	}
	return status, nil
}

// Get gets the resource from path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
func (c *Client) Get(path string, result interface{}) (int, error) {
	return c.do(http.MethodGet, path, nil, result, http.StatusOK)
}

// Post posts a resource to path. Expects http.StatusCreated as
// response, otherwise it will flag an error.
func (c *Client) Post(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPost, path, body, result, http.StatusCreated)
}

// Put puts a resource to path. Expects http.StatusOK as response,
// otherwise it will flag an error.
func (c *Client) Put(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPut, path, body, result, http.StatusOK)
}

// Patch patches the resource at path. Expects http.StatusOK as
// response, otherwise it will flag an error.
func (c *Client) Patch(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPatch, path, body, result, http.StatusOK)
}

// Delete deletes the resource at path. Expects http.StatusOK as
// response, otherwise it will flag an error.
func (c *Client) Delete(path string, result interface{}) (int, error) {
	return c.do(http.MethodDelete, path, nil, result, http.StatusOK)
}

// RawGet gets the resource from path and returns the status code
// without any expectation.
func (c *Client) RawGet(path string, result interface{}) (int, error) {
	r, _ := http.NewRequestWithContext(c.context(), http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, r)
	if result != nil && rec.Code == http.StatusOK && rec.Body.Len() > 0 {
		return rec.Code, json.Unmarshal(rec.Body.Bytes(), result)
	}
	return rec.Code, nil
}
