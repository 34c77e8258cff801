package migrations

import (
	"coinvoice/internal/infrastructure/persistence/models"

	"gorm.io/gorm"
)

func MigrateInvoiceTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.InvoiceModel{},
		&models.QuoteModel{},
		&models.PaymentRecordModel{},
		&models.PipelineStepModel{},
		&models.DepositAddressModel{},
	)
}
