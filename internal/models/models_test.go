package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageJSON(t *testing.T) {
	now := time.UnixMilli(1700000000000).UTC()

	tests := []struct {
		name      string
		msg       any
		wantText  any
		wantImage any
	}{
		{
			name:      "Direct",
			msg:       DirectMessage{ID: "m1", SenderID: "u1", ReceiverID: "u2", Text: "Tom & Jerry", Image: "http://x/a.png", CreatedAt: now},
			wantText:  "Tom & Jerry",
			wantImage: "http://x/a.png",
		},
		{
			name:      "Direct tombstone",
			msg:       DirectMessage{ID: "m1", SenderID: "u1", ReceiverID: "u2", IsDeleted: true, CreatedAt: now},
			wantText:  nil,
			wantImage: nil,
		},
		{
			name:      "Group",
			msg:       GroupMessage{ID: "gm1", GroupID: "g1", SenderID: "u1", Text: "I <3 Go", CreatedAt: now},
			wantText:  "I <3 Go",
			wantImage: nil,
		},
		{
			name:      "Group tombstone",
			msg:       GroupMessage{ID: "gm1", GroupID: "g1", SenderID: "u1", IsDeleted: true, CreatedAt: now},
			wantText:  nil,
			wantImage: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)

			var fields map[string]any
			require.NoError(t, json.Unmarshal(data, &fields))
			assert.Equal(t, tt.wantText, fields["text"])
			assert.Equal(t, tt.wantImage, fields["image"])
			assert.Contains(t, fields, "isDeleted")
		})
	}

	t.Run("Tombstone keys present", func(t *testing.T) {
		data, err := json.Marshal(NewMessage{Message: DirectMessage{ID: "m1", IsDeleted: true}})
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(data, &fields))
		require.Contains(t, fields, "text")
		require.Contains(t, fields, "image")
		assert.Nil(t, fields["text"])
		assert.Nil(t, fields["image"])
		assert.Equal(t, true, fields["isDeleted"])

		var back DirectMessage
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, back.IsDeleted)
		assert.Empty(t, back.Text)
	})
}
