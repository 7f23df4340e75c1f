package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureCriticality(t *testing.T) {
	assert.True(t, FailureInventoryReservation.Critical())
	assert.True(t, FailureSellerStatsUpdate.Critical())
	assert.False(t, FailureNotification.Critical())
}

func TestCompensationForMirrorsFailure(t *testing.T) {
	assert.Equal(t, CompensationInventoryReservation, CompensationFor(FailureInventoryReservation))
	assert.Equal(t, CompensationSellerStatsUpdate, CompensationFor(FailureSellerStatsUpdate))
}

func TestAllRoutingKeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range All() {
		assert.False(t, seen[k], k)
		seen[k] = true
	}
	assert.Len(t, seen, 9)
}
