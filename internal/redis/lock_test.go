package redisclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockKeys(t *testing.T) {
	assert.Equal(t, "lock:slot:S1:2025-10-20:09:00", SlotLockKey("S1", "2025-10-20", "09:00"))
	assert.Equal(t, "lock:pet-day:P1:2025-10-20", PetDayLockKey("P1", "2025-10-20"))
	assert.NotEqual(t, SlotLockKey("S1", "2025-10-20", "09:00"), SlotLockKey("S1", "2025-10-20", "09:30"))
}
