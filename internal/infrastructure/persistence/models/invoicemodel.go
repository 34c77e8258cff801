package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type InvoiceModel struct {
	ID              uint   `gorm:"primaryKey"`
	SID             string `gorm:"column:sid;uniqueIndex;size:32;not null"`
	MerchantID      uint   `gorm:"index;not null"`
	AmountMinor     int64  `gorm:"not null"`
	Currency        string `gorm:"size:10;not null;default:'USD'"`
	EnabledChains   string `gorm:"size:64;not null"`
	SettlementKind  string `gorm:"size:10;not null"`
	SettlementAsset string `gorm:"size:10;not null"`
	Status          string `gorm:"size:20;not null;index"`
	Metadata        JSONB  `gorm:"type:json"`
	ExpiredAt       time.Time `gorm:"not null;index"`
	Version         int       `gorm:"default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (InvoiceModel) TableName() string {
	return "invoices"
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}
