package headless

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRequiresStorefrontURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewDefaultsNavigationTimeout(t *testing.T) {
	t.Parallel()

	src, err := New(Config{StorefrontURL: "https://shop.example.com"}, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 30*time.Second, src.cfg.NavigationTimeout)

	src2, err := New(Config{StorefrontURL: "https://shop.example.com", NavigationTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	defer src2.Close()

	assert.Equal(t, time.Second, src2.cfg.NavigationTimeout)
}
