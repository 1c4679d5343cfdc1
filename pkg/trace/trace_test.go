package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureContext(t *testing.T) {
	ctx := EnsureContext(context.Background())
	id := FromContext(ctx)
	assert.Len(t, id, 32)

	again := EnsureContext(ctx)
	assert.Equal(t, id, FromContext(again))
}

func TestFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", FromContext(context.Background()))
}
