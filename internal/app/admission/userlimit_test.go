package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/partybox/partybox/internal/app/userqueue"
)

func TestUserLimitFilter_Check(t *testing.T) {
	limiter := userqueue.NewLimiter(2)
	filter := NewUserLimitFilter(limiter)
	ctx := context.Background()

	result := filter.Check(ctx, Request{Fingerprint: "alice", URI: "spotify:track:a"})
	assert.True(t, result.Accepted)

	limiter.TryReserve("alice", "spotify:track:a")
	limiter.TryReserve("alice", "spotify:track:b")

	result = filter.Check(ctx, Request{Fingerprint: "alice", URI: "spotify:track:c"})
	assert.False(t, result.Accepted)
	assert.Equal(t, CodeUserQueueLimit, result.Code)

	// Other users are unaffected
	result = filter.Check(ctx, Request{Fingerprint: "bob", URI: "spotify:track:c"})
	assert.True(t, result.Accepted)
}

func TestUserLimitFilter_ZeroLimitNeverRejects(t *testing.T) {
	limiter := userqueue.NewLimiter(0)
	filter := NewUserLimitFilter(limiter)

	for i := 0; i < 20; i++ {
		limiter.TryReserve("alice", "spotify:track:a")
	}

	result := filter.Check(context.Background(), Request{Fingerprint: "alice", URI: "spotify:track:b"})
	assert.True(t, result.Accepted)
}

func TestUserLimitFilter_ValidateConfig(t *testing.T) {
	filter := NewUserLimitFilter(userqueue.NewLimiter(0))

	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{
			name:     "empty settings use defaults",
			settings: map[string]any{},
			wantErr:  false,
		},
		{
			name:     "nil settings",
			settings: nil,
			wantErr:  false,
		},
		{
			name:     "valid limit",
			settings: map[string]any{"limit_per_user": 3},
			wantErr:  false,
		},
		{
			name:     "negative limit",
			settings: map[string]any{"limit_per_user": -1},
			wantErr:  true,
		},
		{
			name:     "wrong type",
			settings: map[string]any{"limit_per_user": "three"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := filter.ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
