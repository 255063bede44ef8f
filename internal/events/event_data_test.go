package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventRoundTrip checks the envelope restores the concrete data type
// from the wire format.
func TestEventRoundTrip(t *testing.T) {
	event := &Event{
		Type:      AnalysisCompleted,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Module:    "engine",
		Data: &AnalysisCompletedData{
			RunID:        "run-123",
			UnifiedScore: 54.2,
			UnifiedLevel: "HIGH",
			Alerts:       3,
			Duration:     1.25,
		},
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "analysis.completed")
	assert.Contains(t, string(raw), "run-123")

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, AnalysisCompleted, decoded.Type)
	assert.Equal(t, "engine", decoded.Module)

	data, ok := decoded.Data.(*AnalysisCompletedData)
	require.True(t, ok, "data decodes to the concrete type")
	assert.Equal(t, "run-123", data.RunID)
	assert.Equal(t, 54.2, data.UnifiedScore)
	assert.Equal(t, 3, data.Alerts)
}

// TestEventRoundTrip_UnknownType falls back to generic map data.
func TestEventRoundTrip_UnknownType(t *testing.T) {
	raw := []byte(`{"type":"something.else","timestamp":"2026-03-01T12:00:00Z","module":"x","data":{"a":1}}`)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	data, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("something.else"), data.EventType())
	assert.Equal(t, float64(1), data.Data["a"])
}

func TestEventDataTypes(t *testing.T) {
	tests := []struct {
		data EventData
		want EventType
	}{
		{&AnalysisStartedData{}, AnalysisStarted},
		{&AnalysisCompletedData{}, AnalysisCompleted},
		{&AnalysisFailedData{}, AnalysisFailed},
		{&AlertsRaisedData{}, AlertsRaised},
		{&BackupCompletedData{}, BackupCompleted},
		{&BackupFailedData{}, BackupFailed},
		{&CacheCleanedData{}, CacheCleaned},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.data.EventType())
	}
}

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	first, unsubFirst := bus.Subscribe(4)
	second, unsubSecond := bus.Subscribe(4)
	defer unsubFirst()
	defer unsubSecond()

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(AnalysisStarted, "engine", &AnalysisStartedData{RunID: "r1", Symbols: []string{"AAPL"}})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, AnalysisStarted, event.Type)
			assert.Equal(t, "engine", event.Module)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

// TestBus_FullSubscriberDoesNotBlock fills one subscriber's buffer and checks
// publishing still completes and other subscribers still receive.
func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	slow, unsubSlow := bus.Subscribe(1)
	fast, unsubFast := bus.Subscribe(4)
	defer unsubSlow()
	defer unsubFast()

	bus.Publish(CacheCleaned, "scheduler", &CacheCleanedData{RunsRemoved: 1})
	bus.Publish(CacheCleaned, "scheduler", &CacheCleanedData{RunsRemoved: 2})

	// The slow subscriber holds only the first event.
	assert.Len(t, slow, 1)
	assert.Len(t, fast, 2)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsubscribe := bus.Subscribe(1)
	unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open, "channel closes on unsubscribe")

	// A second call is a no-op.
	unsubscribe()
}
