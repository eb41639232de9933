package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Encode(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		want    string
		wantErr bool
	}{
		{
			name: "object payload",
			msg:  NewMessage("CommentCreated", map[string]any{"id": 1}),
			want: `{"event":"CommentCreated","data":{"id":1}}`,
		},
		{
			name: "nil payload",
			msg:  NewMessage("Ping", nil),
			want: `{"event":"Ping","data":null}`,
		},
		{name: "nil message", msg: nil, wantErr: true},
		{name: "empty event", msg: NewMessage("", "x"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.Encode()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
