// Package finder implements the default filter query-builder. It
// interprets the filter, sort and pagination query-string syntax of
// generated list endpoints on top of a base query.
//
// Recognized parameters: filter=property=value (equality),
// filter=property~value (LIKE), limit, page, order=asc|desc (by
// primary key) and eager=path.
package finder

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/relabs-tech/restgen/core"
)

// Finder is the default core.Finder for one model.
type Finder struct {
	model core.Model
}

// New creates a finder for the given model.
func New(m core.Model) *Finder {
	return &Finder{model: m}
}

// AllowEager returns the model's permitted eager-load paths.
func (f *Finder) AllowEager() []string {
	return f.model.AllowEager
}

func parseFilter(value string) (column, operand string, like bool, err error) {
	i := strings.IndexRune(value, '=')
	if i < 0 {
		i = strings.IndexRune(value, '~')
		if i < 0 {
			return "", "", false,
				core.BadRequest("cannot parse filter, must be of type property=value or property~value")
		}
		like = true
	}
	return value[:i], value[i+1:], like, nil
}

// Filter applies the filter where-clauses only. This is the contract
// used by bulk mutations; pagination and ordering parameters are
// ignored here.
func (f *Finder) Filter(params url.Values, q core.Query) (core.Query, error) {
	for _, value := range params["filter"] {
		column, operand, like, err := parseFilter(value)
		if err != nil {
			return nil, err
		}
		if like {
			q = q.WhereLike(column, operand)
		} else {
			q = q.Where(column, operand)
		}
	}
	return q, nil
}

// Build applies the full list contract: filters, order, pagination and
// eager-load passthrough.
func (f *Finder) Build(params url.Values, q core.Query) (core.Query, error) {
	var (
		limit     = 100
		page      = 1
		ascending bool
		ordered   bool
		err       error
	)
	for key, array := range params {
		if key != "filter" && key != "eager" && len(array) > 1 {
			return nil, core.BadRequest("illegal parameter array '" + key + "'")
		}
		value := array[0]
		switch key {
		case "limit":
			limit, err = strconv.Atoi(value)
			if err == nil && (limit < 1 || limit > 1000) {
				err = fmt.Errorf("out of range")
			}
		case "page":
			page, err = strconv.Atoi(value)
			if err == nil && page < 1 {
				err = fmt.Errorf("out of range")
			}
		case "order":
			if value != "asc" && value != "desc" {
				err = fmt.Errorf("order must be asc or desc")
				break
			}
			ordered = true
			ascending = value == "asc"
		case "filter":
			// applied below
		case "eager":
			for _, path := range array {
				q = q.Eager(path)
			}
		default:
			err = fmt.Errorf("unknown")
		}
		if err != nil {
			return nil, core.BadRequest("parameter '" + key + "': " + err.Error())
		}
	}

	q, err = f.Filter(params, q)
	if err != nil {
		return nil, err
	}
	if ordered {
		q = q.Order(f.model.ID(), ascending)
	}
	return q.Limit(limit).Offset((page - 1) * limit), nil
}
