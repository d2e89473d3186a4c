// Package lifecycle owns the two write paths of an application: the
// submission guard and the status transition engine. Rule violations are
// returned as Outcomes carrying a display message; only infrastructure
// failures are returned as errors.
package lifecycle

import (
	"time"

	"jobhub/internal/storage"
)

type Outcome string

const (
	OutcomeSuccess         Outcome = "Success"
	OutcomeNotFound        Outcome = "NotFound"
	OutcomeSelfApplication Outcome = "SelfApplicationRejected"
	OutcomeProfileRequired Outcome = "ProfileRequired"
	OutcomeAlreadyApplied  Outcome = "AlreadyApplied"
	OutcomeInvalidStatus   Outcome = "InvalidStatus"
	OutcomeForbidden       Outcome = "Forbidden"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
)

const (
	msgJobNotFound         = "Không tìm thấy tin tuyển dụng hoặc tin đã bị gỡ."
	msgSelfApplication     = "Bạn không thể ứng tuyển vào tin tuyển dụng do chính mình đăng."
	msgProfileRequired     = "Vui lòng hoàn thiện hồ sơ ứng viên trước khi ứng tuyển."
	msgAlreadyApplied      = "Bạn đã ứng tuyển vào vị trí này rồi."
	msgApplied             = "Ứng tuyển thành công! Nhà tuyển dụng sẽ sớm xem hồ sơ của bạn."
	msgApplicationNotFound = "Không tìm thấy hồ sơ ứng tuyển."
	msgForbidden           = "Bạn không có quyền thực hiện thao tác này."
	msgInvalidStatus       = "Trạng thái không hợp lệ."
	msgStatusUpdated       = "Đã cập nhật trạng thái thành \"%s\"."
)

// ApplyResult is the outcome of a submission.
type ApplyResult struct {
	Outcome       Outcome  `json:"outcome"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
	ApplicationID *int64   `json:"application_id,omitempty"`
}

func applyResult(o Outcome, s Severity, msg string) ApplyResult {
	return ApplyResult{Outcome: o, Severity: s, Message: msg}
}

// StatusResult is the outcome of a status transition.
type StatusResult struct {
	Success     bool                      `json:"success"`
	Outcome     Outcome                   `json:"outcome"`
	Severity    Severity                  `json:"severity"`
	Message     string                    `json:"message"`
	NewStatus   storage.ApplicationStatus `json:"new_status,omitempty"`
	StatusLabel string                    `json:"status_label,omitempty"`
	UpdatedAt   *time.Time                `json:"updated_at,omitempty"`
}

func statusFailure(o Outcome, msg string) StatusResult {
	sev := SeverityError
	if o == OutcomeInvalidStatus {
		sev = SeverityWarning
	}
	return StatusResult{Outcome: o, Severity: sev, Message: msg}
}

// PositionsDelta is the change to a job's positions_filled caused by moving
// one of its applications from one status to another.
func PositionsDelta(from, to storage.ApplicationStatus) int {
	switch {
	case from != storage.StatusAccepted && to == storage.StatusAccepted:
		return 1
	case from == storage.StatusAccepted && to != storage.StatusAccepted:
		return -1
	}
	return 0
}
