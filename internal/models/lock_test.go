package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessingLockExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(30 * time.Minute)

	unlocked := &ProcessingLock{Key: DefaultLockKey}
	assert.False(t, unlocked.IsExpired(now))
	assert.False(t, unlocked.IsHeld(now))

	held := &ProcessingLock{Key: DefaultLockKey, IsLocked: true, ExpiresAt: &future}
	assert.False(t, held.IsExpired(now))
	assert.True(t, held.IsHeld(now))

	expired := &ProcessingLock{Key: DefaultLockKey, IsLocked: true, ExpiresAt: &past}
	assert.True(t, expired.IsExpired(now))
	assert.False(t, expired.IsHeld(now))
}

func TestULIDRoundTrip(t *testing.T) {
	id := NewULID()
	assert.False(t, id.IsZero())
	assert.Len(t, id.String(), 26)

	parsed, err := ParseULID(id.String())
	assert.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestULIDScanAndValue(t *testing.T) {
	id := NewULID()

	v, err := id.Value()
	assert.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var scanned ULID
	assert.NoError(t, scanned.Scan(id.String()))
	assert.Equal(t, id, scanned)

	var fromBytes ULID
	assert.NoError(t, fromBytes.Scan([]byte(id.String())))
	assert.Equal(t, id, fromBytes)

	var fromNil ULID
	assert.NoError(t, fromNil.Scan(nil))
	assert.True(t, fromNil.IsZero())
}
