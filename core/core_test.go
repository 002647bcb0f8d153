package core

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestPlural(t *testing.T) {
	assert.Equal(t, "books", Plural("book"))
	assert.Equal(t, "stories", Plural("story"))
	assert.Equal(t, "grandchildren", Plural("grandchild"))
	assert.Equal(t, "storys", AppendS("story"))
}

func TestCamelCase(t *testing.T) {
	assert.Equal(t, "userAccount", CamelCase("user_account"))
	assert.Equal(t, "book", CamelCase("book"))
	assert.Equal(t, "aBC", CamelCase("a_b_c"))
}

func TestOperationUnmarshal(t *testing.T) {
	var op Operation
	assert.NoError(t, json.Unmarshal([]byte(`"create"`), &op))
	assert.Equal(t, OperationCreate, op)
	assert.Error(t, json.Unmarshal([]byte(`"explode"`), &op))
}

func TestCanonicalID(t *testing.T) {
	_, ok := CanonicalID(nil)
	assert.False(t, ok)
	_, ok = CanonicalID("")
	assert.False(t, ok)

	numeric, _ := CanonicalID(float64(34))
	fromString, _ := CanonicalID("34")
	assert.Equal(t, numeric, fromString)

	u, _ := CanonicalID("f17c3dd6-7d0a-4140-8a39-0dad1f16c1a5")
	assert.Equal(t, "f17c3dd6-7d0a-4140-8a39-0dad1f16c1a5", u)

	// integer ids beyond float64 precision keep every digit
	big, _ := CanonicalID("9007199254740993")
	assert.Equal(t, "9007199254740993", big)
	unsigned, _ := CanonicalID("18446744073709551615")
	assert.Equal(t, "18446744073709551615", unsigned)
}

func TestEqualIDs(t *testing.T) {
	assert.True(t, EqualIDs(34, "34"))
	assert.True(t, EqualIDs(float64(34), int64(34)))
	assert.False(t, EqualIDs(34, 35))
	// a missing identifier equals nothing, not even another missing one
	assert.False(t, EqualIDs(nil, nil))
	assert.False(t, EqualIDs("", ""))

	assert.True(t, EqualIDs(int64(9007199254740993), "9007199254740993"))
	assert.False(t, EqualIDs("9007199254740993", "9007199254740992"))
}

func TestStatusErrors(t *testing.T) {
	err := NotFound("author")
	assert.Equal(t, "no such author", err.Error())
	assert.Equal(t, 404, err.(StatusError).StatusCode())

	err = BadRequest("nope")
	assert.Equal(t, 400, err.(StatusError).StatusCode())
}

func TestModelDefaults(t *testing.T) {
	assert.Equal(t, "id", Model{Table: "book"}.ID())
	assert.Equal(t, "book_id", Model{Table: "book", IDColumn: "book_id"}.ID())

	m := Model{Table: "book", Relations: []Relation{{Name: "tags", Kind: ManyToMany, Target: "tag"}}}
	rel, ok := m.RelationByName("tags")
	assert.True(t, ok)
	assert.Equal(t, "tag", rel.Target)
	_, ok = m.RelationByName("nope")
	assert.False(t, ok)

	assert.True(t, BelongsToOne.ToOne())
	assert.False(t, HasMany.ToOne())
	assert.False(t, ManyToMany.ToOne())
}
