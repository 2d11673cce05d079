package fel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	sat "github.com/jhoicas/fel-certificador/pkg/fel"
)

// Prefijo de los elementos del DTE.
const (
	prefixDTE   = "dte"
	prefixNotas = "cno"
)

// Guatemala no tiene horario de verano: UTC-6 fijo.
var guatemalaTZ = time.FixedZone("America/Guatemala", -6*60*60)

// XMLBuilder construye los XML de certificación y anulación (esquema FEL 0.2.0 / 0.1.0).
// La salida solo depende del documento, la configuración y el reloj inyectado.
type XMLBuilder struct {
	now func() time.Time
}

// NewXMLBuilder crea el builder. now nil = time.Now.
func NewXMLBuilder(now func() time.Time) *XMLBuilder {
	if now == nil {
		now = time.Now
	}
	return &XMLBuilder{now: now}
}

// DocumentTypeCode resuelve el Tipo FEL según el tipo de documento y la afiliación IVA.
func DocumentTypeCode(kind entity.DocumentKind, affiliation string) (string, error) {
	peq := strings.EqualFold(affiliation, sat.AfiliacionPequeno)
	switch kind {
	case entity.KindInvoice:
		if peq {
			return sat.TipoFacturaPequeno, nil
		}
		return sat.TipoFactura, nil
	case entity.KindExchange:
		if peq {
			return sat.TipoFacturaCambiariaPequeno, nil
		}
		return sat.TipoFacturaCambiaria, nil
	case entity.KindSpecial:
		return sat.TipoFacturaEspecial, nil
	case entity.KindCreditNote:
		return sat.TipoNotaCredito, nil
	case entity.KindDebitNote:
		return sat.TipoNotaDebito, nil
	case entity.KindReceipt:
		return "", fmt.Errorf("el tipo %q no es certificable en FEL", kind)
	}
	return "", fmt.Errorf("tipo de documento desconocido: %q", kind)
}

// BuildCertification genera el GTDocumento del DTE.
func (b *XMLBuilder) BuildCertification(doc *entity.FELDocument, cfg domainfel.Config) (Payload, error) {
	if doc == nil {
		return Payload{}, &domainfel.BuildError{Err: errors.New("documento nulo")}
	}
	cfg = cfg.WithDefaults()

	tipo, err := DocumentTypeCode(doc.Kind, cfg.Affiliation)
	if err != nil {
		return Payload{}, &domainfel.BuildError{Err: err}
	}

	lines := doc.InScopeLines()
	if len(lines) == 0 {
		return Payload{}, &domainfel.BuildError{Err: domainfel.ErrNoLines}
	}
	breakdowns := make([]domainfel.TaxBreakdown, len(lines))
	for i, l := range lines {
		breakdowns[i] = domainfel.CalculateLine(l)
	}
	totals := domainfel.SumBreakdowns(breakdowns)

	xmlDoc := etree.NewDocument()
	xmlDoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := xmlDoc.CreateElement(dte("GTDocumento"))
	root.CreateAttr("xmlns:"+prefixDTE, sat.NamespaceDTE)
	root.CreateAttr("Version", sat.VersionDocumento)

	satEl := root.CreateElement(dte("SAT"))
	satEl.CreateAttr("ClaseDocumento", sat.ClaseDocumentoDTE)

	dteEl := satEl.CreateElement(dte("DTE"))
	dteEl.CreateAttr("ID", sat.IDDatosCertificados)

	emision := dteEl.CreateElement(dte("DatosEmision"))
	emision.CreateAttr("ID", sat.IDDatosEmision)

	receptorID := recipientID(doc.Recipient)

	// ---- DatosGenerales
	generales := emision.CreateElement(dte("DatosGenerales"))
	generales.CreateAttr("CodigoMoneda", currency(doc.Currency))
	generales.CreateAttr("FechaHoraEmision", b.emissionTime(doc).Format(sat.FormatoFechaHora))
	generales.CreateAttr("Tipo", tipo)
	if receptorID == sat.ReceptorConsumidorFinal && sat.RequiresExportFlag(tipo) {
		generales.CreateAttr("Exp", "SI")
	}

	// ---- Emisor
	writeIssuer(emision, doc, cfg)

	// ---- Receptor
	writeRecipient(emision, doc.Recipient, receptorID)

	// ---- Frases
	frases := emision.CreateElement(dte("Frases"))
	frasesList := sat.FrasesPorAfiliacion(cfg.Affiliation)
	if domainfel.AnyExempt(breakdowns) {
		frasesList = append(frasesList, sat.FraseExenta)
	}
	for _, f := range frasesList {
		fr := frases.CreateElement(dte("Frase"))
		fr.CreateAttr("CodigoEscenario", strconv.Itoa(f.Escenario))
		fr.CreateAttr("TipoFrase", strconv.Itoa(f.Tipo))
	}

	// ---- Items
	items := emision.CreateElement(dte("Items"))
	for i, line := range lines {
		writeItem(items, i+1, line, breakdowns[i])
	}

	// ---- Totales
	totales := emision.CreateElement(dte("Totales"))
	totalImpuestos := totales.CreateElement(dte("TotalImpuestos"))
	for _, name := range totals.TaxNames {
		ti := totalImpuestos.CreateElement(dte("TotalImpuesto"))
		ti.CreateAttr("NombreCorto", name)
		ti.CreateAttr("TotalMontoImpuesto", formatAmount(totals.TaxByName[name]))
	}
	totales.CreateElement(dte("GranTotal")).SetText(formatAmount(totals.GrandTotal))

	// ---- Complementos (solo notas cuyo origen fue certificado)
	if doc.Kind.IsNote() && doc.Origin != nil && doc.Origin.UUID != "" {
		writeNoteReferences(emision, doc)
	}

	// ---- Adenda
	if doc.Narration != "" || doc.Name != "" {
		adenda := satEl.CreateElement(dte("Adenda"))
		adenda.CreateElement("Observaciones").SetText(doc.Narration)
		adenda.CreateElement("NumeroInterno").SetText(doc.Name)
	}

	xmlDoc.Indent(2)
	out, err := xmlDoc.WriteToBytes()
	if err != nil {
		return Payload{}, &domainfel.BuildError{Err: err}
	}
	return Payload{Kind: PayloadCertification, DocType: tipo, XML: out, Totals: totals}, nil
}

// BuildAnnulment genera el GTAnulacionDocumento del documento certificado.
func (b *XMLBuilder) BuildAnnulment(doc *entity.FELDocument, cfg domainfel.Config) (Payload, error) {
	if doc == nil {
		return Payload{}, &domainfel.BuildError{Err: errors.New("documento nulo")}
	}
	if doc.FEL.UUID == "" {
		return Payload{}, &domainfel.BuildError{Err: errors.New("no hay UUID para anular")}
	}

	emitted := doc.InvoiceDate
	if doc.FEL.CertifiedAt != nil {
		emitted = *doc.FEL.CertifiedAt
	}
	reason := strings.TrimSpace(doc.Ref)
	if reason == "" {
		reason = sat.MotivoAnulacionDefault
	}

	xmlDoc := etree.NewDocument()
	xmlDoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := xmlDoc.CreateElement(dte("GTAnulacionDocumento"))
	root.CreateAttr("xmlns:"+prefixDTE, sat.NamespaceAnulacion)
	root.CreateAttr("Version", sat.VersionDocumento)

	anulacion := root.CreateElement(dte("SAT")).CreateElement(dte("AnulacionDTE"))
	anulacion.CreateAttr("ID", sat.IDDatosCertificados)

	generales := anulacion.CreateElement(dte("DatosGenerales"))
	generales.CreateAttr("ID", sat.IDDatosAnulacion)
	generales.CreateAttr("NumeroDocumentoAAnular", doc.FEL.UUID)
	generales.CreateAttr("NITEmisor", sat.CleanNIT(domainfel.IssuerNIT(doc, cfg)))
	generales.CreateAttr("IDReceptor", recipientID(doc.Recipient))
	generales.CreateAttr("FechaEmisionDocumentoAnular", emitted.Format(sat.FormatoFechaHora))
	generales.CreateAttr("FechaHoraAnulacion", b.now().In(guatemalaTZ).Format(sat.FormatoFechaHora))
	generales.CreateAttr("MotivoAnulacion", reason)

	xmlDoc.Indent(2)
	out, err := xmlDoc.WriteToBytes()
	if err != nil {
		return Payload{}, &domainfel.BuildError{Err: err}
	}
	return Payload{Kind: PayloadAnnulment, XML: out}, nil
}

func (b *XMLBuilder) emissionTime(doc *entity.FELDocument) time.Time {
	if !doc.InvoiceDate.IsZero() {
		return doc.InvoiceDate
	}
	return b.now().In(guatemalaTZ)
}

func writeIssuer(parent *etree.Element, doc *entity.FELDocument, cfg domainfel.Config) {
	issuer := doc.Issuer
	name := text(issuer.Name)
	commercial := text(issuer.CommercialName)
	if commercial == "" {
		commercial = name
	}

	emisor := parent.CreateElement(dte("Emisor"))
	emisor.CreateAttr("AfiliacionIVA", cfg.Affiliation)
	emisor.CreateAttr("CodigoEstablecimiento", cfg.EstablishmentCode)
	emisor.CreateAttr("CorreoEmisor", issuer.Email)
	emisor.CreateAttr("NITEmisor", sat.CleanNIT(domainfel.IssuerNIT(doc, cfg)))
	emisor.CreateAttr("NombreComercial", commercial)
	emisor.CreateAttr("NombreEmisor", name)

	writeAddress(emisor.CreateElement(dte("DireccionEmisor")), issuer.Address)
}

func writeRecipient(parent *etree.Element, p *entity.Party, receptorID string) {
	var party entity.Party
	if p != nil {
		party = *p
	}
	name := text(party.Name)
	if name == "" {
		name = sat.NombreConsumidorFinal
	}

	receptor := parent.CreateElement(dte("Receptor"))
	receptor.CreateAttr("CorreoReceptor", party.Email)
	receptor.CreateAttr("IDReceptor", receptorID)
	receptor.CreateAttr("NombreReceptor", name)

	writeAddress(receptor.CreateElement(dte("DireccionReceptor")), party.Address)
}

func writeAddress(el *etree.Element, a entity.Address) {
	el.CreateElement(dte("Direccion")).SetText(orDefault(text(a.Street), sat.DireccionDefault))
	el.CreateElement(dte("CodigoPostal")).SetText(orDefault(a.PostalCode, sat.CodigoPostalDefault))
	el.CreateElement(dte("Municipio")).SetText(orDefault(text(a.Municipality), sat.MunicipioDefault))
	el.CreateElement(dte("Departamento")).SetText(orDefault(text(a.Department), sat.DepartamentoDefault))
	el.CreateElement(dte("Pais")).SetText(orDefault(strings.ToUpper(a.Country), sat.PaisDefault))
}

func writeItem(parent *etree.Element, n int, line entity.FELLine, b domainfel.TaxBreakdown) {
	item := parent.CreateElement(dte("Item"))
	item.CreateAttr("BienOServicio", goodOrService(line.GoodOrService))
	item.CreateAttr("NumeroLinea", strconv.Itoa(n))

	item.CreateElement(dte("Cantidad")).SetText(formatAmount(line.Quantity.Abs()))
	item.CreateElement(dte("UnidadMedida")).SetText(unitOfMeasure(line.UnitOfMeasure))
	item.CreateElement(dte("Descripcion")).SetText(description(line.Description))
	item.CreateElement(dte("PrecioUnitario")).SetText(formatAmount(line.UnitPrice.Abs()))
	item.CreateElement(dte("Precio")).SetText(formatAmount(b.Gross))
	item.CreateElement(dte("Descuento")).SetText(formatAmount(b.Discount))

	impuesto := item.CreateElement(dte("Impuestos")).CreateElement(dte("Impuesto"))
	impuesto.CreateElement(dte("NombreCorto")).SetText(b.TaxName)
	codigo := sat.UnidadGravable
	if b.Exempt() {
		codigo = sat.UnidadGravableExenta
	}
	impuesto.CreateElement(dte("CodigoUnidadGravable")).SetText(strconv.Itoa(codigo))
	impuesto.CreateElement(dte("MontoGravable")).SetText(formatAmount(b.TaxableBase))
	impuesto.CreateElement(dte("MontoImpuesto")).SetText(formatAmount(b.TaxAmount))

	item.CreateElement(dte("Total")).SetText(formatAmount(b.Total))
}

func writeNoteReferences(parent *etree.Element, doc *entity.FELDocument) {
	motivo := strings.TrimSpace(doc.Ref)
	if motivo == "" {
		motivo = sat.MotivoAjusteDefault
	}
	origin := doc.Origin

	complemento := parent.CreateElement(dte("Complementos")).CreateElement(dte("Complemento"))
	complemento.CreateAttr("IDComplemento", sat.ComplementoReferenciasNota)
	complemento.CreateAttr("NombreComplemento", sat.ComplementoReferenciasNota)
	complemento.CreateAttr("URIComplemento", sat.NamespaceNotas)

	ref := complemento.CreateElement(prefixNotas + ":" + sat.ComplementoReferenciasNota)
	ref.CreateAttr("xmlns:"+prefixNotas, sat.NamespaceNotas)
	ref.CreateAttr("Version", sat.VersionReferencias)
	ref.CreateAttr("FechaEmisionDocumentoOrigen", formatDate(origin.IssueDate))
	ref.CreateAttr("MotivoAjuste", motivo)
	ref.CreateAttr("NumeroAutorizacionDocumentoOrigen", origin.UUID)
	ref.CreateAttr("SerieDocumentoOrigen", origin.Series)
	ref.CreateAttr("NumeroDocumentoOrigen", origin.Number)
}

func dte(local string) string {
	return prefixDTE + ":" + local
}

// formatAmount 2 decimales fijos, como espera la validación FEL.
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(sat.FormatoFecha)
}

func recipientID(p *entity.Party) string {
	if p == nil {
		return sat.ReceptorConsumidorFinal
	}
	return sat.NormalizeReceptorID(p.TaxID)
}

func currency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return sat.MonedaDefault
	}
	return code
}

func goodOrService(v string) string {
	if strings.EqualFold(v, "B") {
		return "B"
	}
	return "S"
}

func unitOfMeasure(u string) string {
	u = strings.ToUpper(strings.TrimSpace(u))
	if u == "" {
		return sat.UnidadMedidaDefault
	}
	return truncateRunes(u, sat.MaxUnidadMedida)
}

func description(s string) string {
	s = text(s)
	if s == "" {
		s = "Producto"
	}
	return truncateRunes(s, sat.MaxDescripcion)
}

// text normaliza a NFC y recorta espacios.
func text(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
