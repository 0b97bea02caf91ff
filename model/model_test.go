package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("evt")
	assert.Contains(t, id, "evt_")
}

func TestErrorReason_Transient(t *testing.T) {
	assert.True(t, ReasonDBConflict.Transient())
	assert.True(t, ReasonTimeout.Transient())
	assert.True(t, ReasonUnknown.Transient())
	assert.False(t, ReasonEntityMissing.Transient())
	assert.False(t, ReasonPayloadInvalid.Transient())
}

func TestOutboxEvent_Terminal(t *testing.T) {
	event := &OutboxEvent{Status: StatusDone}
	assert.False(t, event.Terminal(), "status alone is not terminal")

	now := time.Now()
	event.ProcessedAt = &now
	assert.True(t, event.Terminal())
}

func TestBucketFor(t *testing.T) {
	at := time.Unix(1000, 0)
	assert.Equal(t, int64(3), BucketFor(at, 300))
	assert.Equal(t, int64(1000), BucketFor(at, 1))

	// Two times inside one window share a bucket; the next window advances.
	assert.Equal(t, BucketFor(time.Unix(901, 0), 300), BucketFor(time.Unix(1199, 0), 300))
	assert.NotEqual(t, BucketFor(time.Unix(1199, 0), 300), BucketFor(time.Unix(1200, 0), 300))

	// Defensive clamp for a zero window.
	assert.Equal(t, int64(1000), BucketFor(at, 0))
}

func TestEnvironmentSentinel_Allows(t *testing.T) {
	sentinel := &EnvironmentSentinel{ID: 1, Project: "folio", Env: EnvDev}
	assert.True(t, sentinel.Allows(EnvDev, EnvTest))
	assert.False(t, sentinel.Allows(EnvProd))
	assert.False(t, sentinel.Allows())
}

func TestJoinSearchable(t *testing.T) {
	assert.Equal(t, "Moby Dick a whale story", JoinSearchable("Moby Dick", "", "  ", "a whale story"))
	assert.Equal(t, "", JoinSearchable("", "  "))
}

func TestEventVersionNow_Monotonic(t *testing.T) {
	earlier := EventVersionNow(time.Unix(100, 0))
	later := EventVersionNow(time.Unix(100, 1000))
	assert.Less(t, earlier, later)
}
