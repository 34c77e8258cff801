package models

import "time"

// PipelineStepModel rows are append-only; there is no update path.
type PipelineStepModel struct {
	ID          uint   `gorm:"primaryKey"`
	InvoiceID   uint   `gorm:"index:idx_step_invoice_kind;not null"`
	Kind        string `gorm:"size:20;not null;index:idx_step_invoice_kind"`
	Outcome     string `gorm:"size:10;not null"`
	Attempt     int    `gorm:"not null;default:0"`
	Detail      string `gorm:"type:text"`
	NextRetryAt *time.Time
	CreatedAt   time.Time `gorm:"index"`
}

func (PipelineStepModel) TableName() string {
	return "pipeline_steps"
}
