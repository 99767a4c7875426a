package models

import (
	"time"

	"gorm.io/datatypes"
)

// CanonicalCustomerRecord is the normalized form of one row of the upstream
// customer export. Dates and PDPA consents are nullable: the upstream leaves
// them blank for walk-in customers.
type CanonicalCustomerRecord struct {
	ID              uint            `gorm:"primaryKey;autoIncrement" json:"-"`
	Store           string          `gorm:"column:store" json:"store"`
	CustomerName    string          `gorm:"column:customer_name" json:"customer_name"`
	ContactNumber   string          `gorm:"column:contact_number" json:"contact_number"`
	Address         string          `gorm:"column:address" json:"address"`
	Email           string          `gorm:"column:email" json:"email"`
	DateOfBirth     *datatypes.Date `gorm:"column:date_of_birth" json:"date_of_birth"`
	DateJoined      *datatypes.Date `gorm:"column:date_joined" json:"date_joined"`
	AvailableCredit float64         `gorm:"column:available_credit" json:"available_credit"`
	AvailablePoint  float64         `gorm:"column:available_point" json:"available_point"`
	Source          string          `gorm:"column:source" json:"source"`
	SMSPDPA         *bool           `gorm:"column:sms_pdpa" json:"sms_pdpa"`
	EmailPDPA       *bool           `gorm:"column:email_pdpa" json:"email_pdpa"`
	UpdateTime      time.Time       `gorm:"column:update_time" json:"update_time"`
	BatchID         string          `gorm:"column:batch_id;index" json:"batch_id"`
}

func (CanonicalCustomerRecord) TableName() string {
	return "customers"
}

// Job outcome reporting.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type FileResult struct {
	File    string `json:"file"`
	BatchID string `json:"batch_id,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type JobResult struct {
	Status   string       `json:"status"`
	Message  string       `json:"message,omitempty"`
	Results  []FileResult `json:"results,omitempty"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

func (r JobResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Event bus models.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // job.started, job.completed, batch.loaded
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
