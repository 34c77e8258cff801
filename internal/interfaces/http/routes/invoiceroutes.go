// Package routes provides HTTP route configurations.
package routes

import (
	"github.com/gin-gonic/gin"

	"coinvoice/internal/interfaces/http/handlers"
)

// InvoiceRouteConfig contains dependencies for payer-facing invoice routes.
type InvoiceRouteConfig struct {
	InvoiceHandler *handlers.InvoiceHandler
}

// SetupInvoiceRoutes configures the payer-facing invoice routes.
// :id is the invoice SID (inv_xxx format)
func SetupInvoiceRoutes(engine *gin.Engine, cfg *InvoiceRouteConfig) {
	invoices := engine.Group("/invoices/:id")
	{
		invoices.GET("", cfg.InvoiceHandler.GetInvoice)
		invoices.GET("/quote", cfg.InvoiceHandler.GetActiveQuote)
		invoices.POST("/quote", cfg.InvoiceHandler.IssueQuote)
		invoices.POST("/check-payment", cfg.InvoiceHandler.CheckPayment)
		invoices.GET("/pipeline", cfg.InvoiceHandler.GetPipeline)
		invoices.POST("/cancel", cfg.InvoiceHandler.CancelInvoice)
	}
}
