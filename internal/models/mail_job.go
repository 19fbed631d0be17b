package models

import (
	"time"

	"gorm.io/datatypes"
)

// MailJobStatus tracks a job through the dispatch queue.
type MailJobStatus string

const (
	MailJobPending    MailJobStatus = "pending"
	MailJobProcessing MailJobStatus = "processing"
	MailJobDead       MailJobStatus = "dead"
)

// MailJob is a durable outbound email request. Delivered jobs are deleted.
type MailJob struct {
	BaseModel

	Kind        string         `gorm:"size:64;not null" json:"kind"`
	Payload     datatypes.JSON `json:"payload"`
	Status      MailJobStatus  `gorm:"size:16;not null;index:idx_mail_jobs_status_available" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null" json:"max_attempts"`
	AvailableAt time.Time      `gorm:"not null;index:idx_mail_jobs_status_available" json:"available_at"`
	LockedUntil *time.Time     `json:"locked_until"`
	LastError   string         `gorm:"type:text" json:"last_error"`
}

// ConfirmationPayload is the payload of a confirmation mail job.
type ConfirmationPayload struct {
	Email string `json:"email"`
	Token string `json:"token"`
}
