package decode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingPayload struct {
	ReceiverID string `json:"receiverId"`
	GroupID    string `json:"groupId"`
	Count      int    `json:"count"`
}

func TestPayloadWeakTypes(t *testing.T) {
	p, err := Payload[typingPayload](json.RawMessage(`{"receiverId":42,"groupId":"g1","count":3.0}`))
	require.NoError(t, err)
	assert.Equal(t, "42", p.ReceiverID)
	assert.Equal(t, "g1", p.GroupID)
	assert.Equal(t, 3, p.Count)
}

func TestPayloadEmpty(t *testing.T) {
	p, err := Payload[typingPayload](nil)
	require.NoError(t, err)
	assert.Equal(t, typingPayload{}, *p)

	p, err = Payload[typingPayload](json.RawMessage("null"))
	require.NoError(t, err)
	assert.Equal(t, typingPayload{}, *p)
}

func TestPayloadNotObject(t *testing.T) {
	_, err := Payload[typingPayload](json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestReadHelpers(t *testing.T) {
	m := map[string]any{"id": float64(7), "ids": []any{"a", float64(2)}}
	s, err := ReadString(m, "id")
	require.NoError(t, err)
	assert.Equal(t, "7", s)

	ss, err := ReadStringSlice(m, "ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "2"}, ss)

	_, err = ReadString(m, "missing")
	assert.Error(t, err)
}
