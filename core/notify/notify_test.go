package notify

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/restgen/core"
)

func TestLogNotifier(t *testing.T) {
	err := Log{}.Notify(context.Background(), "book", core.OperationCreate, []byte(`{"id":"1"}`))
	assert.NoError(t, err)
}

func TestEventEncoding(t *testing.T) {
	body, err := json.Marshal(Event{
		Resource:  "book/tags",
		Operation: core.OperationReplace,
		Payload:   json.RawMessage(`[{"id":"1"}]`),
		Timestamp: time.Date(2021, 4, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	decoded := Event{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "book/tags", decoded.Resource)
	assert.Equal(t, core.OperationReplace, decoded.Operation)
	assert.JSONEq(t, `[{"id":"1"}]`, string(decoded.Payload))
}
