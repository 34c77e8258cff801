package models

import "time"

// PaymentRecordModel carries a uniqueIndex on InvoiceID: at most one
// detected payment per invoice, enforced by the database.
type PaymentRecordModel struct {
	ID            uint   `gorm:"primaryKey"`
	SID           string `gorm:"column:sid;uniqueIndex;size:32;not null"`
	InvoiceID     uint   `gorm:"uniqueIndex;not null"`
	QuoteID       uint   `gorm:"index;not null"`
	Chain         string `gorm:"size:10;not null"`
	TxRef         string `gorm:"size:128;not null;index"`
	Amount        string `gorm:"type:decimal(30,18);not null"`
	Confirmations int    `gorm:"not null"`
	DetectedAt    time.Time `gorm:"not null"`
	CreatedAt     time.Time
}

func (PaymentRecordModel) TableName() string {
	return "payment_records"
}
