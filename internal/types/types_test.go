package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemory_IsValidAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)

	open := &Memory{ValidFrom: now}
	assert.True(t, open.IsValidAt(now))
	assert.True(t, open.IsValidAt(future))
	assert.False(t, open.IsValidAt(now.Add(-time.Hour)))

	closed := &Memory{ValidFrom: now, ValidUntil: &future}
	assert.True(t, closed.IsValidAt(now))
	assert.False(t, closed.IsValidAt(future))
	assert.True(t, closed.IsValidAt(future.Add(-time.Minute)))
}
