package navigation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextNavigator_WritesSlot(t *testing.T) {
	ctx, slot := WithSlot(context.Background())
	nav := ContextNavigator{}

	nav.Navigate(ctx, PathDashboard)
	nav.Navigate(ctx, PathLogin)

	assert.Equal(t, PathDashboard, slot.Path(), "first decision wins")
}

func TestContextNavigator_WithoutSlot(t *testing.T) {
	nav := ContextNavigator{}

	assert.NotPanics(t, func() { nav.Navigate(context.Background(), PathLogin) })
	_, ok := SlotFromContext(context.Background())
	assert.False(t, ok)
}

func TestRecorder(t *testing.T) {
	var r Recorder

	r.Navigate(context.Background(), PathLogin)
	r.Navigate(context.Background(), PathDashboard)

	paths := r.Paths()
	require.Len(t, paths, 2)
	assert.Equal(t, []string{PathLogin, PathDashboard}, paths)
}
