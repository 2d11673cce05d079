package fel

import (
	"time"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
)

// Result respuesta del certificador para una certificación, anulación o consulta.
type Result struct {
	Success        bool       `json:"success"`
	UUID           string     `json:"uuid,omitempty"`
	Series         string     `json:"series,omitempty"`
	Number         string     `json:"number,omitempty"`
	AccessNumber   string     `json:"access_number,omitempty"`
	CertifiedAt    *time.Time `json:"certified_at,omitempty"`
	CertifiedAtRaw string     `json:"certified_at_raw,omitempty"` // fecha tal como la devolvió INFILE
	CertifiedXML   string     `json:"certified_xml,omitempty"`
	PDFURL         string     `json:"pdf_url,omitempty"`
	Message        string     `json:"message,omitempty"`
	Errors         []string   `json:"errors,omitempty"`
	IssuerWarnings []string   `json:"issuer_warnings,omitempty"`
	SATWarnings    []string   `json:"sat_warnings,omitempty"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	Status         string     `json:"status,omitempty"` // estado devuelto por la consulta
}

// Patch cambios a aplicar al documento. From es el estado leído al inicio;
// el repositorio aplica State solo si el estado persistido sigue siendo From.
type Patch struct {
	From  entity.FELStatus
	State entity.FELState
}

// TaxpayerInfo respuesta de la consulta de NIT.
type TaxpayerInfo struct {
	NIT     string `json:"nit"`
	Name    string `json:"nombre"`
	Message string `json:"mensaje"`
}

// PersonInfo respuesta de la consulta de CUI.
type PersonInfo struct {
	CUI      string         `json:"cui"`
	Name     string         `json:"nombre"`
	Deceased bool           `json:"fallecido"`
	Raw      map[string]any `json:"raw"`
}
