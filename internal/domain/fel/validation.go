package fel

import (
	"strings"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
)

// ValidateCertify revisa todas las precondiciones de certificación y las devuelve juntas
// en un único ValidationError (nil si el documento puede certificarse).
func ValidateCertify(doc *entity.FELDocument, cfg Config) error {
	if doc == nil {
		return NewValidationError([]string{"documento nulo"})
	}
	var problems []string

	if !doc.Posted {
		problems = append(problems, "la factura debe estar publicada antes de certificar")
	}
	if !doc.Kind.Certifiable() {
		problems = append(problems, "solo se pueden certificar facturas y notas de crédito/débito (tipo "+string(doc.Kind)+")")
	}
	switch doc.EffectiveStatus() {
	case entity.FELStatusPending, entity.FELStatusError:
	case entity.FELStatusCertified:
		problems = append(problems, "este documento ya está certificado en FEL")
	default:
		problems = append(problems, "el estado FEL "+string(doc.EffectiveStatus())+" no admite certificación")
	}
	if doc.Recipient == nil {
		problems = append(problems, "debe seleccionar un cliente")
	} else if strings.TrimSpace(doc.Recipient.TaxID) == "" && strings.TrimSpace(doc.Recipient.Name) == "" {
		problems = append(problems, "el cliente debe tener NIT o nombre")
	}
	if strings.TrimSpace(IssuerNIT(doc, cfg)) == "" {
		problems = append(problems, "la empresa debe tener NIT configurado")
	}
	if len(doc.InScopeLines()) == 0 {
		problems = append(problems, "la factura debe tener al menos una línea certificable")
	}
	problems = append(problems, cfg.Problems()...)
	if doc.Kind.IsNote() {
		hasOrigin := doc.Origin != nil && doc.Origin.UUID != ""
		if !hasOrigin && strings.TrimSpace(doc.Ref) == "" {
			problems = append(problems, "la nota debe tener un documento de origen o referencia")
		}
	}

	return NewValidationError(problems)
}

// ValidateAnnul exige documento certificado con UUID.
func ValidateAnnul(doc *entity.FELDocument) error {
	if doc == nil {
		return NewValidationError([]string{"documento nulo"})
	}
	var problems []string
	if doc.EffectiveStatus() != entity.FELStatusCertified {
		problems = append(problems, "solo se pueden anular documentos certificados (estado "+string(doc.EffectiveStatus())+")")
	}
	if doc.FEL.UUID == "" {
		problems = append(problems, "el documento no tiene UUID de certificación")
	}
	return NewValidationError(problems)
}

// ValidateQuery exige un UUID.
func ValidateQuery(uuid string) error {
	if strings.TrimSpace(uuid) == "" {
		return NewValidationError([]string{"debe proporcionar un UUID para consultar"})
	}
	return nil
}

// ValidateRetry solo admite documentos en estado error.
func ValidateRetry(doc *entity.FELDocument) error {
	if doc == nil {
		return NewValidationError([]string{"documento nulo"})
	}
	if doc.EffectiveStatus() != entity.FELStatusError {
		return NewValidationError([]string{"solo se puede reintentar un documento en estado error (estado " + string(doc.EffectiveStatus()) + ")"})
	}
	return nil
}

// IssuerNIT NIT del emisor: el del documento o, si falta, el configurado.
func IssuerNIT(doc *entity.FELDocument, cfg Config) string {
	if doc != nil && strings.TrimSpace(doc.Issuer.TaxID) != "" {
		return doc.Issuer.TaxID
	}
	return cfg.IssuerNIT
}
