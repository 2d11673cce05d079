// Package fel contiene catálogos y validaciones alineados al esquema FEL 0.2.0
// de la SAT (Guatemala) y a las reglas del certificador INFILE.
package fel

// =============================================================================
// Espacios de nombres del esquema FEL
// =============================================================================

const (
	NamespaceDTE        = "http://www.sat.gob.gt/dte/fel/0.2.0"
	NamespaceAnulacion  = "http://www.sat.gob.gt/dte/fel/0.1.0"
	NamespaceNotas      = "http://www.sat.gob.gt/fel/notas.xsd"
	VersionDocumento    = "0.1"
	VersionReferencias  = "0.0"
	ClaseDocumentoDTE   = "dte"
	IDDatosCertificados = "DatosCertificados"
	IDDatosEmision      = "DatosEmision"
	IDDatosAnulacion    = "DatosAnulacion"
)

// =============================================================================
// Tipos de documento (DatosGenerales/@Tipo)
// =============================================================================

const (
	TipoFactura                 = "FACT" // Factura
	TipoFacturaPequeno          = "FPEQ" // Factura pequeño contribuyente
	TipoFacturaCambiaria        = "FCAM" // Factura cambiaria
	TipoFacturaCambiariaPequeno = "FCAP" // Factura cambiaria pequeño contribuyente
	TipoFacturaEspecial         = "FESP" // Factura especial
	TipoNotaCredito             = "NCRE" // Nota de crédito
	TipoNotaDebito              = "NDEB" // Nota de débito
)

// RequiresExportFlag indica si el tipo lleva Exp="SI" cuando el receptor es consumidor final.
func RequiresExportFlag(tipo string) bool {
	return tipo == TipoFactura || tipo == TipoFacturaCambiaria
}

// =============================================================================
// Afiliación IVA del emisor
// =============================================================================

const (
	AfiliacionGeneral = "GEN" // Régimen general
	AfiliacionExento  = "EXE" // Exento
	AfiliacionPequeno = "PEQ" // Pequeño contribuyente
)

// ValidAfiliaciones afiliaciones IVA reconocidas por la SAT.
var ValidAfiliaciones = map[string]bool{
	AfiliacionGeneral: true,
	AfiliacionExento:  true,
	AfiliacionPequeno: true,
}

// Frase par TipoFrase/CodigoEscenario del bloque Frases.
type Frase struct {
	Tipo      int
	Escenario int
}

// FrasesPorAfiliacion frases fijas del régimen fiscal del emisor.
// GEN/EXE: sujeto a pagos trimestrales ISR. PEQ: régimen de pequeño contribuyente.
func FrasesPorAfiliacion(afiliacion string) []Frase {
	if afiliacion == AfiliacionPequeno {
		return []Frase{{Tipo: 3, Escenario: 1}}
	}
	return []Frase{{Tipo: 1, Escenario: 1}}
}

// FraseExenta frase de exención que acompaña a los ítems con CodigoUnidadGravable 2.
var FraseExenta = Frase{Tipo: 4, Escenario: 1}

// =============================================================================
// Impuestos
// =============================================================================

const (
	ImpuestoIVA          = "IVA"
	UnidadGravable       = 1 // gravado con tasa
	UnidadGravableExenta = 2 // exento / tasa 0
	TasaIVADefault       = 12
)

// =============================================================================
// Valores por defecto del receptor/emisor
// =============================================================================

const (
	ReceptorConsumidorFinal = "CF"
	NombreConsumidorFinal   = "Consumidor Final"
	UnidadMedidaDefault     = "UND"
	MonedaDefault           = "GTQ"
	DireccionDefault        = "Ciudad"
	CodigoPostalDefault     = "01001"
	MunicipioDefault        = "Guatemala"
	DepartamentoDefault     = "Guatemala"
	PaisDefault             = "GT"
	MotivoAnulacionDefault  = "Anulación de documento"
	MotivoAjusteDefault     = "Anulación"
	MaxDescripcion          = 500
	MaxUnidadMedida         = 3
)

// Complemento de referencias para notas de crédito/débito.
const (
	ComplementoReferenciasNota = "ReferenciasNota"
)

// FormatoFechaHora formato de FechaHoraEmision / FechaHoraAnulacion.
const FormatoFechaHora = "2006-01-02T15:04:05"

// FormatoFecha formato de FechaEmisionDocumentoOrigen.
const FormatoFecha = "2006-01-02"
