// Package notify fans lifecycle events out to the notification ledger and
// the presence channel without blocking the request that produced them.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"jobhub/internal/storage"
)

type Kind string

const (
	KindNewApplication Kind = "new_application"
	KindStatusChanged  Kind = "status_changed"
)

// Event is one state change addressed to one user.
type Event struct {
	Kind            Kind
	RecipientUserID string
	ApplicationID   int64
	JobID           int64
	JobGUID         string
	JobTitle        string
	CandidateName   string
	CompanyName     string
	OldStatus       storage.ApplicationStatus
	NewStatus       storage.ApplicationStatus
	OccurredAt      time.Time
}

// Render returns the ledger title and body of e.
func Render(e Event) (title, body string) {
	switch e.Kind {
	case KindNewApplication:
		name := e.CandidateName
		if name == "" {
			name = "Một ứng viên"
		}
		return "Có ứng viên mới ứng tuyển",
			fmt.Sprintf("%s vừa ứng tuyển vào vị trí \"%s\".", name, e.JobTitle)
	case KindStatusChanged:
		label := e.NewStatus.Label()
		where := fmt.Sprintf("\"%s\"", e.JobTitle)
		if e.CompanyName != "" {
			where += " tại " + e.CompanyName
		}
		return "Hồ sơ của bạn: " + label,
			fmt.Sprintf("Hồ sơ ứng tuyển vị trí %s đã được chuyển sang trạng thái \"%s\".", where, label)
	}
	return string(e.Kind), ""
}

func (e Event) category() storage.NotificationCategory {
	if e.Kind == KindNewApplication {
		return storage.CategoryNewApplication
	}
	return storage.CategoryStatusChange
}

// Notification builds the ledger record for e.
func (e Event) Notification() *storage.Notification {
	title, body := Render(e)
	jobID, appID := e.JobID, e.ApplicationID
	n := &storage.Notification{
		UserID:    e.RecipientUserID,
		Category:  e.category(),
		Title:     title,
		Body:      body,
		CreatedAt: e.OccurredAt,
	}
	if jobID != 0 {
		n.JobID = &jobID
	}
	if appID != 0 {
		n.ApplicationID = &appID
	}
	return n
}

// PresenceMessage is the flat payload pushed to a user's presence group.
type PresenceMessage struct {
	Type          Kind      `json:"type"`
	ApplicationID int64     `json:"application_id"`
	JobID         int64     `json:"job_id"`
	JobGUID       string    `json:"job_guid"`
	JobTitle      string    `json:"job_title"`
	CandidateName string    `json:"candidate_name,omitempty"`
	CompanyName   string    `json:"company_name,omitempty"`
	OldStatus     string    `json:"old_status,omitempty"`
	NewStatus     string    `json:"new_status,omitempty"`
	StatusLabel   string    `json:"status_label,omitempty"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// Payload encodes e as its presence message.
func Payload(e Event) ([]byte, error) {
	title, body := Render(e)
	msg := PresenceMessage{
		Type:          e.Kind,
		ApplicationID: e.ApplicationID,
		JobID:         e.JobID,
		JobGUID:       e.JobGUID,
		JobTitle:      e.JobTitle,
		Title:         title,
		Message:       body,
		Timestamp:     e.OccurredAt,
	}
	switch e.Kind {
	case KindNewApplication:
		msg.CandidateName = e.CandidateName
	case KindStatusChanged:
		msg.CompanyName = e.CompanyName
		msg.OldStatus = string(e.OldStatus)
		msg.NewStatus = string(e.NewStatus)
		msg.StatusLabel = e.NewStatus.Label()
	}
	return json.Marshal(msg)
}
