package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewDeduper_NilClientDisablesDedup(t *testing.T) {
	d := NewDeduper(nil, time.Hour, zap.NewNop())
	assert.Nil(t, d)

	// every claim succeeds without Redis
	assert.True(t, d.AcquireOnce(context.Background(), "user_digest", "42:202603100900"))
	assert.True(t, d.AcquireOnce(context.Background(), "user_digest", "42:202603100900"))
}

func TestFormatDedupKey(t *testing.T) {
	assert.Equal(t, "licensewatch:dedup:user_digest:42", FormatDedupKey("user_digest", "42"))
}
