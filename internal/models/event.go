package models

import "time"

// EventType identifies what changed on a server
type EventType string

const (
	EventStatusChanged   EventType = "statusChanged"
	EventConsoleLine     EventType = "consoleLine"
	EventArtifactChanged EventType = "artifactChanged"
	EventConfigChanged   EventType = "configChanged"
	EventServerAdded     EventType = "serverAdded"
	EventServerRemoved   EventType = "serverRemoved"
)

// Event is published on the event bus for every observable change
type Event struct {
	ID        string      `json:"id"`
	ServerID  string      `json:"server_id"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatusChange is the payload of a statusChanged event
type StatusChange struct {
	From      Status `json:"from"`
	To        Status `json:"to"`
	LastError string `json:"last_error,omitempty"`
}

// ConsoleLine is the payload of a consoleLine event
type ConsoleLine struct {
	Line string `json:"line"`
}

// ArtifactChange is the payload of an artifactChanged event
type ArtifactChange struct {
	StartupFile string `json:"startup_file"`
}

// AuditRecord is the flattened form of an event kept by the audit sink
type AuditRecord struct {
	EventID   string    `json:"event_id" dynamodbav:"EventId"`
	ServerID  string    `json:"server_id" dynamodbav:"ServerId"`
	Type      string    `json:"type" dynamodbav:"Type"`
	Detail    string    `json:"detail,omitempty" dynamodbav:"Detail,omitempty"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"Timestamp"`
}
