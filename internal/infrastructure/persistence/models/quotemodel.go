package models

import "time"

type QuoteModel struct {
	ID           uint   `gorm:"primaryKey"`
	SID          string `gorm:"column:sid;uniqueIndex;size:32;not null"`
	InvoiceID    uint   `gorm:"index:idx_quote_invoice_chain;not null"`
	Chain        string `gorm:"size:10;not null;index:idx_quote_invoice_chain"`
	FiatMinor    int64  `gorm:"not null"`
	FiatCurrency string `gorm:"size:10;not null"`
	// Decimal columns travel as strings to keep full precision.
	CryptoAmount string `gorm:"type:decimal(30,18);not null"`
	Rate         string `gorm:"type:decimal(30,18);not null"`
	IssuedAt     time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"not null;index"`
	Locked       bool      `gorm:"not null;default:false;index"`
	LockedAt     *time.Time
	Superseded   bool `gorm:"not null;default:false"`
	Version      int  `gorm:"default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (QuoteModel) TableName() string {
	return "quotes"
}
