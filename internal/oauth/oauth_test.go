package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateState(t *testing.T) {
	state1, err := GenerateState()
	assert.NoError(t, err)
	state2, err := GenerateState()
	assert.NoError(t, err)

	assert.NotEqual(t, state1, state2)
	// 32 random bytes in URL-safe base64
	assert.Len(t, state1, 44)
}

func TestStateStore_TakeOnce(t *testing.T) {
	s := NewStateStore(time.Minute)

	state, err := s.Issue("google", "/reports")
	require.NoError(t, err)

	p, ok := s.Take(state)
	require.True(t, ok)
	assert.Equal(t, "google", p.Provider)
	assert.Equal(t, "/reports", p.Next)

	_, ok = s.Take(state)
	assert.False(t, ok)
}

func TestStateStore_Expired(t *testing.T) {
	s := NewStateStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	state, err := s.Issue("google", "/")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, ok := s.Take(state)
	assert.False(t, ok)
}

func TestStateStore_Sweep(t *testing.T) {
	s := NewStateStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.Issue("google", "/")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	fresh, err := s.Issue("google", "/")
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, s.Sweep())

	_, ok := s.Take(fresh)
	assert.True(t, ok)
}

func TestStateStore_UnknownState(t *testing.T) {
	_, ok := NewStateStore(time.Minute).Take("nope")
	assert.False(t, ok)
}
