package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// FELStatus estado del documento frente al certificador FEL (SAT Guatemala).
type FELStatus string

const (
	FELStatusPending   FELStatus = "pending"   // Sin certificar (estado inicial)
	FELStatusCertified FELStatus = "certified" // Certificado por la SAT vía INFILE
	FELStatusCancelled FELStatus = "cancelled" // Anulado (solo desde certified)
	FELStatusError     FELStatus = "error"     // Falló la certificación; admite reintento
)

// Valid indica si el estado es uno de los cuatro conocidos.
func (s FELStatus) Valid() bool {
	switch s {
	case FELStatusPending, FELStatusCertified, FELStatusCancelled, FELStatusError:
		return true
	}
	return false
}

// DocumentKind tipo de documento contable.
type DocumentKind string

const (
	KindInvoice    DocumentKind = "invoice"     // Factura (FACT / FPEQ)
	KindExchange   DocumentKind = "exchange"    // Factura cambiaria (FCAM / FCAP)
	KindSpecial    DocumentKind = "special"     // Factura especial (FESP)
	KindCreditNote DocumentKind = "credit_note" // Nota de crédito (NCRE)
	KindDebitNote  DocumentKind = "debit_note"  // Nota de débito (NDEB)
	KindReceipt    DocumentKind = "receipt"     // Recibo interno, no certificable
)

// Certifiable indica si el tipo de documento puede enviarse a certificar.
func (k DocumentKind) Certifiable() bool {
	switch k {
	case KindInvoice, KindExchange, KindSpecial, KindCreditNote, KindDebitNote:
		return true
	}
	return false
}

// IsNote indica si el documento es una nota de ajuste que referencia a un documento origen.
func (k DocumentKind) IsNote() bool {
	return k == KindCreditNote || k == KindDebitNote
}

// Tipos de línea que no se certifican (secciones y notas).
const (
	DisplayTypeSection = "line_section"
	DisplayTypeNote    = "line_note"
)

// Address dirección de emisor o receptor; campos vacíos toman valores por defecto al construir el XML.
type Address struct {
	Street       string `json:"street"`
	PostalCode   string `json:"postal_code"`
	Municipality string `json:"municipality"`
	Department   string `json:"department"`
	Country      string `json:"country"`
}

// Party emisor o receptor del documento.
type Party struct {
	TaxID          string  `json:"tax_id"` // NIT o CF
	Name           string  `json:"name"`
	CommercialName string  `json:"commercial_name"`
	Email          string  `json:"email"`
	Address        Address `json:"address"`
}

// LineTax impuesto configurado en la línea.
type LineTax struct {
	Name         string          `json:"name"`
	Rate         decimal.Decimal `json:"rate"` // porcentaje, 12 = 12%
	PriceInclude bool            `json:"price_include"`
}

// FELLine línea del documento.
type FELLine struct {
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	DiscountPct   decimal.Decimal `json:"discount_pct"`
	Taxes         []LineTax       `json:"taxes"`
	GoodOrService string          `json:"good_or_service"` // B | S
	Description   string          `json:"description"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	DisplayType   string          `json:"display_type"`
}

// InScope indica si la línea participa de numeración y totales. Solo secciones
// y notas quedan fuera; cualquier otro display_type ("product", vacío) es certificable.
func (l FELLine) InScope() bool {
	return !l.IsDecoration() && !l.Quantity.IsZero()
}

// IsDecoration indica una línea de sección o de nota.
func (l FELLine) IsDecoration() bool {
	return l.DisplayType == DisplayTypeSection || l.DisplayType == DisplayTypeNote
}

// OriginRef referencia al documento origen de una nota de crédito/débito.
type OriginRef struct {
	UUID      string    `json:"uuid"`
	Series    string    `json:"series"`
	Number    string    `json:"number"`
	IssueDate time.Time `json:"issue_date"`
}

// FELState campos FEL que el motor escribe de vuelta al documento.
type FELState struct {
	Status       FELStatus  `json:"status"`
	UUID         string     `json:"uuid,omitempty"`
	Series       string     `json:"series,omitempty"`
	Number       string     `json:"number,omitempty"`
	AccessNumber string     `json:"access_number,omitempty"`
	CertifiedAt  *time.Time `json:"certified_at,omitempty"`
	XMLSent      string     `json:"xml_sent,omitempty"`
	XMLResponse  string     `json:"xml_response,omitempty"`
	PDFURL       string     `json:"pdf_url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// FELDocument snapshot de la factura o nota que se certifica.
type FELDocument struct {
	ID          string       `json:"id"`
	CompanyID   string       `json:"company_id"`
	Name        string       `json:"name"` // número interno
	Kind        DocumentKind `json:"kind"`
	Posted      bool         `json:"posted"`
	Currency    string       `json:"currency"`
	InvoiceDate time.Time    `json:"invoice_date"`
	Narration   string       `json:"narration"`
	Ref         string       `json:"ref"` // motivo de ajuste o anulación
	Lines       []FELLine    `json:"lines"`
	Issuer      Party        `json:"issuer"`
	Recipient   *Party       `json:"recipient"`
	Origin      *OriginRef   `json:"origin,omitempty"`
	FEL         FELState     `json:"fel"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// InScopeLines devuelve solo las líneas certificables, en su orden original.
func (d *FELDocument) InScopeLines() []FELLine {
	out := make([]FELLine, 0, len(d.Lines))
	for _, l := range d.Lines {
		if l.InScope() {
			out = append(out, l)
		}
	}
	return out
}

// EffectiveStatus trata un estado vacío como pending.
func (d *FELDocument) EffectiveStatus() FELStatus {
	if d.FEL.Status == "" {
		return FELStatusPending
	}
	return d.FEL.Status
}
