package model

import (
	"fmt"
	"time"
)

// RecordStatus is the lifecycle state of a service record.
type RecordStatus string

const (
	RecordActive    RecordStatus = "active"
	RecordCompleted RecordStatus = "completed"
	RecordCancelled RecordStatus = "cancelled"
)

// ServiceRecord is a committed booking between a provider and a client.
// Once completed or cancelled it never changes again.
type ServiceRecord struct {
	ID          int64        `json:"id"`
	ProviderID  int64        `json:"provider_id"`
	ClientID    int64        `json:"client_id"`
	ServiceName string       `json:"service_name"`
	Cost        int64        `json:"cost"`
	Address     string       `json:"address"`
	Date        string       `json:"date"` // YYYY-MM-DD
	Time        string       `json:"time"` // HH:MM
	Comments    string       `json:"comments"`
	Status      RecordStatus `json:"status"`

	// Completion report, set once when the record moves to completed.
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	WentWell        bool   `json:"went_well,omitempty"`
	Notes           string `json:"notes,omitempty"`

	// Display names filled by joined queries, not stored on the row.
	ClientName   string `json:"client_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DateLabel renders the stored date in the DD.MM.YYYY form the interface
// uses everywhere.
func (r *ServiceRecord) DateLabel() string {
	t, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return r.Date
	}
	return t.Format("02.01.2006")
}

// Summary is the one-line form used in numbered selection lists.
func (r *ServiceRecord) Summary() string {
	return fmt.Sprintf("%s — %s %s", r.ServiceName, r.DateLabel(), r.Time)
}
