package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchStateUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    MatchState
		wantErr bool
	}{
		{in: `0`, want: MatchUnknown},
		{in: `1`, want: MatchNone},
		{in: `2`, want: MatchFound},
		{in: `"MATCH_STATE_UNSPECIFIED"`, want: MatchUnknown},
		{in: `"NO_MATCH_FOUND"`, want: MatchNone},
		{in: `"MATCH_FOUND"`, want: MatchFound},
		{in: `null`, want: MatchUnknown},
		{in: `"SOMETHING_ELSE"`, wantErr: true},
		{in: `3`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got MatchState
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchStateLabel(t *testing.T) {
	assert.Equal(t, LabelNotAssessed, MatchUnknown.Label())
	assert.Equal(t, LabelSafe, MatchNone.Label())
	assert.Equal(t, LabelBlocked, MatchFound.Label())
}

func TestFailOpenVerdict(t *testing.T) {
	v := FailOpenVerdict("untouched")
	assert.True(t, v.IsSafe)
	assert.False(t, v.Blocked)
	assert.Equal(t, MatchUnknown, v.MatchState)
	assert.Equal(t, "untouched", v.SanitizedText)
	assert.Empty(t, v.Categories)
}
