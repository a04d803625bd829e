package webhook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogAppendAndRecent(t *testing.T) {
	log := NewEventLog(10)

	for i := 0; i < 3; i++ {
		log.Append(Event{Subsystem: SubsystemItems, Action: fmt.Sprintf("update-%d", i), Success: true, ReceivedAt: time.Now()})
	}

	recent := log.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "update-2", recent[0].Action, "newest first")
	assert.Equal(t, "update-0", recent[2].Action)
}

func TestEventLogEvictsOldest(t *testing.T) {
	log := NewEventLog(5)

	for i := 0; i < 8; i++ {
		log.Append(Event{Action: fmt.Sprintf("e-%d", i)})
	}

	assert.Equal(t, 5, log.Len())
	recent := log.Recent(0)
	require.Len(t, recent, 5)
	assert.Equal(t, "e-7", recent[0].Action)
	assert.Equal(t, "e-3", recent[4].Action, "entries 0-2 evicted")
}

func TestEventLogRecentLimit(t *testing.T) {
	log := NewEventLog(5)
	for i := 0; i < 5; i++ {
		log.Append(Event{Action: fmt.Sprintf("e-%d", i)})
	}

	recent := log.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "e-4", recent[0].Action)
	assert.Equal(t, "e-3", recent[1].Action)
}

func TestEventLogEmpty(t *testing.T) {
	log := NewEventLog(5)
	assert.Empty(t, log.Recent(10))
	assert.Equal(t, 0, log.Len())
}
