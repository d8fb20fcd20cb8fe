package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeCallback(t *testing.T) {
	tests := []struct {
		name   string
		action string
		args   []string
	}{
		{"no args", CallbackJoin, nil},
		{"one arg", PrefixRefresh, []string{"poll_123_456"}},
		{"vote with game id", PrefixVote, []string{"poll_123_456", "174430"}},
		{"manage toggle", PrefixManage, []string{"toggle", "-1048577", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := EncodeCallback(tt.action, tt.args...)
			action, args := DecodeCallback(data)

			assert.Equal(t, tt.action, action)
			if len(tt.args) == 0 {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestDecodeCallbackStripsTelebotPrefix(t *testing.T) {
	action, args := DecodeCallback("\fvote:poll_1_2:42")
	assert.Equal(t, PrefixVote, action)
	assert.Equal(t, []string{"poll_1_2", "42"}, args)
}
