package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
)

// FELOperationResponse respuesta de certify / annul / retry.
type FELOperationResponse struct {
	DocumentID string            `json:"document_id"`
	Status     entity.FELStatus  `json:"fel_status"`
	Message    string            `json:"message,omitempty"`
	Result     *domainfel.Result `json:"result,omitempty"`
	FEL        entity.FELState   `json:"fel"`
}

// FELStatusResponse estado local del documento más la consulta remota (si tiene UUID).
type FELStatusResponse struct {
	DocumentID string            `json:"document_id"`
	Status     entity.FELStatus  `json:"fel_status"`
	UUID       string            `json:"uuid,omitempty"`
	Remote     *domainfel.Result `json:"remote,omitempty"`
}

// TotalsResponse totales re-derivados de las líneas certificables.
type TotalsResponse struct {
	TaxableBase decimal.Decimal            `json:"taxable_base"`
	TaxByName   map[string]decimal.Decimal `json:"tax_by_name"`
	TotalTax    decimal.Decimal            `json:"total_tax"`
	GrandTotal  decimal.Decimal            `json:"grand_total"`
}

// XMLPreviewResponse XML generado sin enviarlo al certificador.
type XMLPreviewResponse struct {
	DocumentID string         `json:"document_id"`
	DocType    string         `json:"doc_type"`
	Digest     string         `json:"digest"`
	XML        string         `json:"xml"`
	Totals     TotalsResponse `json:"totals"`
}

// FELDocumentSummary fila del listado de documentos.
type FELDocumentSummary struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Kind         entity.DocumentKind `json:"kind"`
	InvoiceDate  time.Time           `json:"invoice_date"`
	Status       entity.FELStatus    `json:"fel_status"`
	UUID         string              `json:"uuid,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// FELDocumentListResponse listado paginado.
type FELDocumentListResponse struct {
	Items []FELDocumentSummary `json:"items"`
	Page  PageResponse         `json:"page"`
}

// NewTotalsResponse convierte los totales del dominio.
func NewTotalsResponse(t domainfel.DocumentTotals) TotalsResponse {
	out := TotalsResponse{
		TaxableBase: t.TaxableBase,
		TaxByName:   make(map[string]decimal.Decimal, len(t.TaxByName)),
		TotalTax:    t.TotalTax,
		GrandTotal:  t.GrandTotal,
	}
	for name, amount := range t.TaxByName {
		out.TaxByName[name] = amount
	}
	return out
}

// NewFELDocumentSummary resume un documento para listados.
func NewFELDocumentSummary(doc *entity.FELDocument) FELDocumentSummary {
	return FELDocumentSummary{
		ID:           doc.ID,
		Name:         doc.Name,
		Kind:         doc.Kind,
		InvoiceDate:  doc.InvoiceDate,
		Status:       doc.EffectiveStatus(),
		UUID:         doc.FEL.UUID,
		ErrorMessage: doc.FEL.ErrorMessage,
	}
}
