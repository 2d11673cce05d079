// Package fel implementa la construcción del XML FEL (SAT Guatemala) y el cliente HTTP
// del certificador INFILE (proceso unificado firma + certificación).
package fel

import (
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
)

// PayloadKind tipo de documento XML generado.
type PayloadKind string

const (
	PayloadCertification PayloadKind = "certification"
	PayloadAnnulment     PayloadKind = "annulment"
)

// Payload XML listo para enviar al certificador (bytes sin re-codificar).
type Payload struct {
	Kind    PayloadKind
	DocType string // FACT, FPEQ, NCRE... vacío en anulaciones
	XML     []byte
	// Totals desglose usado para Items/Totales (solo certificación).
	Totals domainfel.DocumentTotals
}

// String devuelve el XML como texto (para guardar en xml_sent).
func (p Payload) String() string {
	return string(p.XML)
}
