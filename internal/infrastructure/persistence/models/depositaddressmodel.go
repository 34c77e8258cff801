package models

import "time"

type DepositAddressModel struct {
	ID        uint   `gorm:"primaryKey"`
	InvoiceID uint   `gorm:"uniqueIndex:idx_deposit_invoice_chain;not null"`
	Chain     string `gorm:"size:10;not null;uniqueIndex:idx_deposit_invoice_chain"`
	Address   string `gorm:"size:128;not null;index"`
	CreatedAt time.Time
}

func (DepositAddressModel) TableName() string {
	return "deposit_addresses"
}
