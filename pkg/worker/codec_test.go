package worker

import (
	"encoding/json"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfpm/internal"
)

func TestDecodeSweepEvent(t *testing.T) {
	body, err := json.Marshal(internal.Event{
		Provider: "github",
		Name:     "assignedTasks",
		Type:     "assignedTasks",
		Project:  "mihai/test",
		Data:     map[string]interface{}{"project": "mihai/test"},
	})
	require.NoError(t, err)

	evt, err := DefaultCodec{}.Decode("review", message.NewMessage(watermill.NewUUID(), body))
	require.NoError(t, err)
	assert.Equal(t, "assignedTasks", evt.Type)
	assert.Equal(t, "mihai/test", evt.Project)
	assert.Equal(t, "github", evt.Provider)
	assert.Equal(t, "mihai/test", evt.Normalized["project"])
}

func TestDecodeMetadataWins(t *testing.T) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"type":"ignored","action":"opened"}`))
	msg.Metadata.Set(internal.MetadataType, "newIssue")

	evt, err := DefaultCodec{}.Decode("t", msg)
	require.NoError(t, err)
	assert.Equal(t, "newIssue", evt.Type)
	assert.Equal(t, "newIssue", evt.Metadata[internal.MetadataType])
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := DefaultCodec{}.Decode("t", message.NewMessage(watermill.NewUUID(), []byte("nope")))
	assert.Error(t, err)
}
