package finder_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/finder"
)

// recorder is a core.Query that only records the builder calls.
type recorder struct {
	wheres      map[string]interface{}
	likes       map[string]string
	eager       []string
	ordered     bool
	orderColumn string
	ascending   bool
	limit       int
	offset      int
}

func newRecorder() *recorder {
	return &recorder{wheres: map[string]interface{}{}, likes: map[string]string{}, limit: -1}
}

func (r *recorder) Where(column string, value interface{}) core.Query {
	r.wheres[column] = value
	return r
}

func (r *recorder) WhereIn(column string, values []interface{}) core.Query { return r }

func (r *recorder) WhereLike(column string, pattern string) core.Query {
	r.likes[column] = pattern
	return r
}

func (r *recorder) Eager(path string) core.Query {
	r.eager = append(r.eager, path)
	return r
}

func (r *recorder) Order(column string, ascending bool) core.Query {
	r.ordered = true
	r.orderColumn = column
	r.ascending = ascending
	return r
}

func (r *recorder) Limit(n int) core.Query  { r.limit = n; return r }
func (r *recorder) Offset(n int) core.Query { r.offset = n; return r }

func (r *recorder) First(ctx context.Context) (core.Item, error)            { return nil, nil }
func (r *recorder) List(ctx context.Context) ([]core.Item, error)           { return nil, nil }
func (r *recorder) Insert(ctx context.Context, i core.Item) (core.Item, error) { return i, nil }
func (r *recorder) Update(ctx context.Context, i core.Item) (int64, error)  { return 0, nil }
func (r *recorder) Patch(ctx context.Context, i core.Item) (int64, error)   { return 0, nil }
func (r *recorder) Delete(ctx context.Context) (int64, error)               { return 0, nil }

func params(query string) url.Values {
	v, _ := url.ParseQuery(query)
	return v
}

func TestBuildDefaults(t *testing.T) {
	f := finder.New(core.Model{Table: "book"})
	r := newRecorder()
	_, err := f.Build(url.Values{}, r)
	require.NoError(t, err)
	assert.Equal(t, 100, r.limit)
	assert.Equal(t, 0, r.offset)
	assert.False(t, r.ordered)
	assert.Empty(t, r.wheres)
}

func TestBuildPagination(t *testing.T) {
	f := finder.New(core.Model{Table: "book"})
	r := newRecorder()
	_, err := f.Build(params("limit=10&page=3"), r)
	require.NoError(t, err)
	assert.Equal(t, 10, r.limit)
	assert.Equal(t, 20, r.offset)
}

func TestBuildOrder(t *testing.T) {
	f := finder.New(core.Model{Table: "book", IDColumn: "book_id"})
	r := newRecorder()
	_, err := f.Build(params("order=asc"), r)
	require.NoError(t, err)
	assert.True(t, r.ordered)
	assert.Equal(t, "book_id", r.orderColumn)
	assert.True(t, r.ascending)

	r = newRecorder()
	_, err = f.Build(params("order=desc"), r)
	require.NoError(t, err)
	assert.False(t, r.ascending)
}

func TestBuildFilters(t *testing.T) {
	f := finder.New(core.Model{Table: "book"})
	r := newRecorder()
	_, err := f.Build(params("filter=genre=sci&filter=title~One%25"), r)
	require.NoError(t, err)
	assert.Equal(t, "sci", r.wheres["genre"])
	assert.Equal(t, "One%", r.likes["title"])
}

func TestBuildEagerPassthrough(t *testing.T) {
	f := finder.New(core.Model{Table: "book", AllowEager: []string{"author"}})
	r := newRecorder()
	// the finder passes paths through unchecked, enforcement is the
	// persistence layer's job
	_, err := f.Build(params("eager=author&eager=nope"), r)
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "nope"}, r.eager)
	assert.Equal(t, []string{"author"}, f.AllowEager())
}

func TestBuildRejectsBadParameters(t *testing.T) {
	f := finder.New(core.Model{Table: "book"})
	for _, query := range []string{
		"unknown=1",
		"limit=abc",
		"limit=0",
		"limit=1001",
		"page=0",
		"order=sideways",
		"limit=1&limit=2",
		"filter=nonsense",
	} {
		_, err := f.Build(params(query), newRecorder())
		assert.Error(t, err, query)
		statusErr, ok := err.(core.StatusError)
		require.True(t, ok, query)
		assert.Equal(t, 400, statusErr.StatusCode())
	}
}

func TestFilterIgnoresPagination(t *testing.T) {
	f := finder.New(core.Model{Table: "book"})
	r := newRecorder()
	_, err := f.Filter(params("filter=genre=sci&limit=10&order=asc"), r)
	require.NoError(t, err)
	assert.Equal(t, "sci", r.wheres["genre"])
	assert.Equal(t, -1, r.limit)
	assert.False(t, r.ordered)
}
