package pdf

import (
	"context"
	"io"
)

// InvoiceData is everything the invoice PDF renders. Money values arrive
// preformatted so the layout stays unit-agnostic.
type InvoiceData struct {
	InvoiceNumber string
	Username      string
	Email         string
	Month         string
	GeneratedAt   string
	Status        string

	Items []InvoiceItem

	Total string
}

type InvoiceItem struct {
	Description string
	Quantity    string
	Rate        string
	Amount      string
}

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error) {
	return nil, nil
}
