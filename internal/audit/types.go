package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Detection events
	EventDetectionStarted   EventType = "detection.started"
	EventDetectionCompleted EventType = "detection.completed"
	EventDetectorFailed     EventType = "detection.detector_failed"
	EventAnomalyDetected    EventType = "detection.anomaly_detected"

	// Repair events
	EventRepairAttempted EventType = "repair.attempted"
	EventRepairExecuted  EventType = "repair.executed"
	EventRepairFailed    EventType = "repair.failed"
	EventRepairSkipped   EventType = "repair.skipped"

	// Retention events
	EventRetentionSweep EventType = "retention.sweep"

	// Configuration events
	EventConfigLoaded  EventType = "config.loaded"
	EventConfigChanged EventType = "config.changed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultSkipped Result = "skipped"
)

// Event represents a single audit event
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Dataset identity
	DataSource string `json:"data_source,omitempty"`
	Symbol     string `json:"symbol,omitempty"`
	DataType   string `json:"data_type,omitempty"`

	// Event details
	AnomalyID   string         `json:"anomaly_id,omitempty"`
	Action      string         `json:"action,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Error information
	Error string `json:"error,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]any),
	}
}

// WithCorrelationID sets the correlation ID for event tracking
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithDataset sets the dataset identity the event concerns
func (e *Event) WithDataset(source, symbol, dataType string) *Event {
	e.DataSource = source
	e.Symbol = symbol
	e.DataType = dataType
	return e
}

// WithAnomaly sets the anomaly the event concerns
func (e *Event) WithAnomaly(id string) *Event {
	e.AnomalyID = id
	return e
}

// WithAction sets the repair action being performed
func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information and marks the event failed
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value any) *Event {
	e.Metadata[key] = value
	return e
}
