package domain

import (
	"time"
)

// InvoiceItem is a single line on an invoice.
type InvoiceItem struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	TaxRate     float64 `json:"tax_rate"`
}

// Invoice carries the validated data the assistant collected for one
// billing document.
type Invoice struct {
	CustomerName    string        `json:"customer_name" validate:"required"`
	CustomerTaxID   string        `json:"customer_tax_id"`
	CustomerEmail   string        `json:"customer_email"`
	CustomerAddress string        `json:"customer_address"`
	DocumentType    string        `json:"documento_tipo"`
	VATCondition    string        `json:"condicion_iva"`
	VATOperation    string        `json:"condicion_iva_operacion"`
	Items           []InvoiceItem `json:"items" validate:"required,min=1,dive"`
	InvoiceDate     time.Time     `json:"invoice_date"`
	InvoiceType     string        `json:"invoice_type"`
	PaymentMethod   string        `json:"payment_method"`
	Currency        string        `json:"currency"`
}

// Total is the invoice total. Factura C line prices carry no separate
// VAT component, so tax is not added on top.
func (i *Invoice) Total() float64 {
	var total float64
	for _, item := range i.Items {
		total += item.Quantity * item.UnitPrice
	}
	return total
}

// TaxAmount is the aggregate tax across all items at their line rates.
func (i *Invoice) TaxAmount() float64 {
	var tax float64
	for _, item := range i.Items {
		tax += item.Quantity * item.UnitPrice * item.TaxRate
	}
	return tax
}
