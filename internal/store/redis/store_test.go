package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespacedKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		namespace string
		key       string
		expected  string
	}{
		{name: "default namespace", namespace: "everscaleConnect", key: "getBalance|0:aa|main", expected: "everscaleConnect:getBalance|0:aa|main"},
		{name: "empty namespace", namespace: "", key: "k", expected: "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, namespacedKey(tt.namespace, tt.key))
		})
	}
}

func TestNewResponseStore_InvalidURL(t *testing.T) {
	_, err := NewResponseStore(context.Background(), "not a url", "ns")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis url")
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore("everscaleConnect")
	now := time.Unix(1_700_000_000, 0)
	s.nowFn = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte(`{"status":"ok"}`), 5*time.Second))
	_, ok := s.items["everscaleConnect:k"]
	assert.True(t, ok)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"status":"ok"}`, string(v))

	now = now.Add(5 * time.Second)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_NoTTLNeverExpires(t *testing.T) {
	s := NewMemoryStore("")
	now := time.Unix(1_700_000_000, 0)
	s.nowFn = func() time.Time { return now }

	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), 0))
	now = now.Add(24 * time.Hour)
	_, ok, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
