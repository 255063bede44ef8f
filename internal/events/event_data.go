package events

import (
	"encoding/json"
	"time"
)

// EventType identifies a published event.
type EventType string

const (
	AnalysisStarted   EventType = "analysis.started"
	AnalysisCompleted EventType = "analysis.completed"
	AnalysisFailed    EventType = "analysis.failed"
	AlertsRaised      EventType = "alerts.raised"
	BackupCompleted   EventType = "backup.completed"
	BackupFailed      EventType = "backup.failed"
	CacheCleaned      EventType = "cache.cleaned"
)

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// AnalysisStartedData contains data for AnalysisStarted events
type AnalysisStartedData struct {
	RunID   string   `json:"run_id"`
	Symbols []string `json:"symbols"`
	Period  string   `json:"period"`
}

// EventType returns the event type for AnalysisStartedData
func (d *AnalysisStartedData) EventType() EventType {
	return AnalysisStarted
}

// AnalysisCompletedData contains data for AnalysisCompleted events
type AnalysisCompletedData struct {
	RunID        string  `json:"run_id"`
	UnifiedScore float64 `json:"unified_score"`
	UnifiedLevel string  `json:"unified_level"`
	Alerts       int     `json:"alerts"`
	Duration     float64 `json:"duration_seconds"`
}

// EventType returns the event type for AnalysisCompletedData
func (d *AnalysisCompletedData) EventType() EventType {
	return AnalysisCompleted
}

// AnalysisFailedData contains data for AnalysisFailed events
type AnalysisFailedData struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// EventType returns the event type for AnalysisFailedData
func (d *AnalysisFailedData) EventType() EventType {
	return AnalysisFailed
}

// AlertsRaisedData contains data for AlertsRaised events, published when a
// run produces HIGH or CRITICAL alerts
type AlertsRaisedData struct {
	RunID    string `json:"run_id"`
	Critical int    `json:"critical"`
	High     int    `json:"high"`
	Total    int    `json:"total"`
}

// EventType returns the event type for AlertsRaisedData
func (d *AlertsRaisedData) EventType() EventType {
	return AlertsRaised
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string  `json:"key"`
	SizeBytes int64   `json:"size_bytes"`
	Duration  float64 `json:"duration_seconds,omitempty"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// BackupFailedData contains data for BackupFailed events
type BackupFailedData struct {
	Error string `json:"error"`
}

// EventType returns the event type for BackupFailedData
func (d *BackupFailedData) EventType() EventType {
	return BackupFailed
}

// CacheCleanedData contains data for CacheCleaned events
type CacheCleanedData struct {
	RunsRemoved  int64 `json:"runs_removed"`
	CacheRemoved int64 `json:"cache_removed"`
}

// EventType returns the event type for CacheCleanedData
func (d *CacheCleanedData) EventType() EventType {
	return CacheCleaned
}

// Event represents a published event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for Event
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case AnalysisStarted:
			eventData = &AnalysisStartedData{}
		case AnalysisCompleted:
			eventData = &AnalysisCompletedData{}
		case AnalysisFailed:
			eventData = &AnalysisFailedData{}
		case AlertsRaised:
			eventData = &AlertsRaisedData{}
		case BackupCompleted:
			eventData = &BackupCompletedData{}
		case BackupFailed:
			eventData = &BackupFailedData{}
		case CacheCleaned:
			eventData = &CacheCleanedData{}
		default:
			// For unknown types, use raw map
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			eventData = &GenericEventData{Type: aux.Type, Data: rawData}
		}

		if err := json.Unmarshal(aux.Data, eventData); err != nil {
			return err
		}
		e.Data = eventData
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
