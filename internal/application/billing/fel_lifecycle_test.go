package billing_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fel-certificador/internal/application/billing"
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	infrafel "github.com/jhoicas/fel-certificador/internal/infrastructure/fel"
	"github.com/jhoicas/fel-certificador/pkg/logger"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeCertifier struct {
	certifyRes *domainfel.Result
	certifyErr error
	annulRes   *domainfel.Result
	annulErr   error
	statusRes  *domainfel.Result
	nitInfo    *domainfel.TaxpayerInfo
	cuiInfo    *domainfel.PersonInfo

	certifyCalls int
	annulCalls   int
	lastPayload  infrafel.Payload
	lastNIT      string
	lastCUI      string
}

func (f *fakeCertifier) Certify(_ context.Context, _ domainfel.Config, p infrafel.Payload) (*domainfel.Result, error) {
	f.certifyCalls++
	f.lastPayload = p
	return f.certifyRes, f.certifyErr
}

func (f *fakeCertifier) Annul(_ context.Context, _ domainfel.Config, p infrafel.Payload) (*domainfel.Result, error) {
	f.annulCalls++
	f.lastPayload = p
	return f.annulRes, f.annulErr
}

func (f *fakeCertifier) QueryStatus(_ context.Context, _ domainfel.Config, uuid string) *domainfel.Result {
	if f.statusRes != nil {
		return f.statusRes
	}
	return &domainfel.Result{Success: true, UUID: uuid, Status: "Vigente", Message: "Documento encontrado: Vigente"}
}

func (f *fakeCertifier) LookupNIT(_ context.Context, _ domainfel.Config, nit string) (*domainfel.TaxpayerInfo, error) {
	f.lastNIT = nit
	return f.nitInfo, nil
}

func (f *fakeCertifier) LookupCUI(_ context.Context, _ domainfel.Config, cui string) (*domainfel.PersonInfo, error) {
	f.lastCUI = cui
	return f.cuiInfo, nil
}

type errConfigSource struct{}

func (errConfigSource) Resolve(context.Context, string) (domainfel.Config, error) {
	return domainfel.Config{}, errors.New("settings no disponibles")
}

// ── Fixtures ──────────────────────────────────────────────────────────────────

var fixedNow = time.Date(2024, 3, 15, 16, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testConfig() domainfel.Config {
	return domainfel.Config{
		IssuerNIT:   "12345679",
		APIUser:     "12345679",
		APIKey:      "llave-api",
		Mode:        domainfel.ModeTest,
		Affiliation: "GEN",
	}
}

func pendingInvoice() *entity.FELDocument {
	return &entity.FELDocument{
		ID:          "doc-1",
		CompanyID:   "co-1",
		Name:        "INV/2024/0001",
		Kind:        entity.KindInvoice,
		Posted:      true,
		InvoiceDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Issuer:      entity.Party{TaxID: "1234567-9", Name: "Mi Empresa"},
		Recipient:   &entity.Party{TaxID: "CF", Name: "Consumidor Final"},
		Lines: []entity.FELLine{{
			Quantity:    dec("2"),
			UnitPrice:   dec("100"),
			Taxes:       []entity.LineTax{{Name: "IVA", Rate: dec("12"), PriceInclude: true}},
			Description: "Cuaderno",
		}},
		FEL: entity.FELState{Status: entity.FELStatusPending},
	}
}

func certifiedInvoice() *entity.FELDocument {
	doc := pendingInvoice()
	at := fixedNow
	doc.FEL = entity.FELState{
		Status:      entity.FELStatusCertified,
		UUID:        "AAAA-BBBB",
		Series:      "AAAA",
		Number:      "123",
		CertifiedAt: &at,
		XMLSent:     "<xml/>",
	}
	return doc
}

func newController(cert *fakeCertifier) *billing.FELController {
	return billing.NewFELController(
		infrafel.NewXMLBuilder(func() time.Time { return fixedNow }),
		cert,
		billing.NewStaticConfigSource(testConfig()),
		nil,
	)
}

func successResult() *domainfel.Result {
	at := fixedNow
	return &domainfel.Result{
		Success:       true,
		UUID:          "AAAA-BBBB",
		Series:        "AAAA",
		Number:        "123",
		CertifiedAt:   &at,
		CertifiedXML:  "<certificado/>",
		Message:       "Validado y Certificado Exitosamente",
		TransactionID: "CERT_20240315163000_abcdef12",
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Certify
// ──────────────────────────────────────────────────────────────────────────────

func TestCertify_Exitoso(t *testing.T) {
	cert := &fakeCertifier{certifyRes: successResult()}
	out, err := newController(cert).Certify(context.Background(), pendingInvoice())
	require.NoError(t, err)
	require.NotNil(t, out.Patch)

	assert.Equal(t, entity.FELStatusPending, out.Patch.From)
	st := out.Patch.State
	assert.Equal(t, entity.FELStatusCertified, st.Status)
	assert.Equal(t, "AAAA-BBBB", st.UUID)
	assert.Equal(t, "AAAA", st.Series)
	assert.Equal(t, "123", st.Number)
	assert.Equal(t, "<certificado/>", st.XMLResponse)
	assert.Contains(t, st.XMLSent, "GTDocumento")
	assert.Empty(t, st.ErrorMessage)
	assert.Equal(t, "FACT", cert.lastPayload.DocType)
	assert.Equal(t, "200.00", cert.lastPayload.Totals.GrandTotal.StringFixed(2))
}

func TestCertify_EstadoVacioSeTrataComoPending(t *testing.T) {
	doc := pendingInvoice()
	doc.FEL.Status = ""
	out, err := newController(&fakeCertifier{certifyRes: successResult()}).Certify(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, entity.FELStatusPending, out.Patch.From)
}

func TestCertify_YaCertificadoSeRechazaSinLlamarAlCertificador(t *testing.T) {
	cert := &fakeCertifier{certifyRes: successResult()}
	out, err := newController(cert).Certify(context.Background(), certifiedInvoice())

	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Problems, "este documento ya está certificado en FEL")
	assert.Nil(t, out)
	assert.Zero(t, cert.certifyCalls)
}

func TestCertify_PrecondicionesAgregadas(t *testing.T) {
	doc := pendingInvoice()
	doc.Posted = false
	doc.Recipient = nil
	doc.Lines = nil

	cert := &fakeCertifier{}
	_, err := newController(cert).Certify(context.Background(), doc)

	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Problems, 3)
	assert.Zero(t, cert.certifyCalls)
}

func TestCertify_ConfiguracionInvalidaEnLaMismaLista(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "demo"
	cfg.Affiliation = "XYZ"
	doc := pendingInvoice()
	doc.Posted = false

	cert := &fakeCertifier{}
	ctrl := billing.NewFELController(
		infrafel.NewXMLBuilder(func() time.Time { return fixedNow }),
		cert,
		billing.NewStaticConfigSource(cfg),
		nil,
	)
	_, err := ctrl.Certify(context.Background(), doc)

	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Problems, 3, "publicación, modo y afiliación en un solo error")
	assert.Zero(t, cert.certifyCalls)
}

func TestCertify_RechazoGeneraPatchError(t *testing.T) {
	cert := &fakeCertifier{
		certifyErr: domainfel.NewCertificationError([]string{"NIT inválido", "Total no cuadra"}, "Error en la certificación"),
	}
	out, err := newController(cert).Certify(context.Background(), pendingInvoice())

	var certErr *domainfel.CertificationError
	require.ErrorAs(t, err, &certErr)
	require.NotNil(t, out)
	require.NotNil(t, out.Patch)
	assert.Equal(t, entity.FELStatusPending, out.Patch.From)
	assert.Equal(t, entity.FELStatusError, out.Patch.State.Status)
	assert.Equal(t, "Error FEL: NIT inválido; Total no cuadra", out.Patch.State.ErrorMessage)
	assert.NotEmpty(t, out.Patch.State.XMLSent, "se guarda el XML enviado para diagnóstico")
}

func TestCertify_ErrorDeConexionGeneraPatchError(t *testing.T) {
	cert := &fakeCertifier{certifyErr: &domainfel.ConnectionError{Op: "certificar", Err: context.DeadlineExceeded}}
	out, err := newController(cert).Certify(context.Background(), pendingInvoice())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, out.Patch)
	assert.Equal(t, entity.FELStatusError, out.Patch.State.Status)
}

func TestCertify_ResultadoFallidoSinError(t *testing.T) {
	cert := &fakeCertifier{certifyRes: &domainfel.Result{Success: false, Errors: []string{"rechazado"}}}
	out, err := newController(cert).Certify(context.Background(), pendingInvoice())

	var certErr *domainfel.CertificationError
	require.ErrorAs(t, err, &certErr)
	assert.Equal(t, "rechazado", certErr.Message)
	assert.Equal(t, entity.FELStatusError, out.Patch.State.Status)
}

func TestCertify_ConfiguracionNoDisponible(t *testing.T) {
	ctrl := billing.NewFELController(infrafel.NewXMLBuilder(nil), &fakeCertifier{}, errConfigSource{}, nil)
	out, err := ctrl.Certify(context.Background(), pendingInvoice())
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestCertify_NotaCreditoSinOrigenNiReferencia(t *testing.T) {
	doc := pendingInvoice()
	doc.Kind = entity.KindCreditNote

	_, err := newController(&fakeCertifier{}).Certify(context.Background(), doc)
	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Problems, "la nota debe tener un documento de origen o referencia")
}

// ──────────────────────────────────────────────────────────────────────────────
// Retry
// ──────────────────────────────────────────────────────────────────────────────

func TestRetry_SoloDesdeError(t *testing.T) {
	cert := &fakeCertifier{certifyRes: successResult()}
	_, err := newController(cert).Retry(context.Background(), pendingInvoice())

	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, cert.certifyCalls)
}

func TestRetry_DesdeErrorCertifica(t *testing.T) {
	doc := pendingInvoice()
	doc.FEL.Status = entity.FELStatusError
	doc.FEL.ErrorMessage = "Error FEL: timeout"

	cert := &fakeCertifier{certifyRes: successResult()}
	out, err := newController(cert).Retry(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, entity.FELStatusError, out.Patch.From, "el compare-and-set parte del estado persistido")
	assert.Equal(t, entity.FELStatusCertified, out.Patch.State.Status)
	assert.Empty(t, out.Patch.State.ErrorMessage)
	assert.Equal(t, 1, cert.certifyCalls)
	assert.Equal(t, entity.FELStatusError, doc.FEL.Status, "el snapshot del llamador no se modifica")
}

func TestRetry_FallaVuelveAError(t *testing.T) {
	doc := pendingInvoice()
	doc.FEL.Status = entity.FELStatusError
	doc.FEL.ErrorMessage = "Error FEL: anterior"

	cert := &fakeCertifier{certifyErr: domainfel.NewCertificationError([]string{"nuevo"}, "")}
	out, err := newController(cert).Retry(context.Background(), doc)
	require.Error(t, err)

	assert.Equal(t, entity.FELStatusError, out.Patch.From)
	assert.Equal(t, entity.FELStatusError, out.Patch.State.Status)
	assert.Equal(t, "Error FEL: nuevo", out.Patch.State.ErrorMessage)
}

// ──────────────────────────────────────────────────────────────────────────────
// Annul
// ──────────────────────────────────────────────────────────────────────────────

func TestAnnul_Exitoso(t *testing.T) {
	cert := &fakeCertifier{annulRes: &domainfel.Result{Success: true, UUID: "AAAA-BBBB", Message: "Documento anulado exitosamente"}}
	out, err := newController(cert).Annul(context.Background(), certifiedInvoice())
	require.NoError(t, err)

	assert.Equal(t, entity.FELStatusCertified, out.Patch.From)
	assert.Equal(t, entity.FELStatusCancelled, out.Patch.State.Status)
	assert.Equal(t, "AAAA-BBBB", out.Patch.State.UUID, "se conservan los datos de certificación")
	assert.Equal(t, infrafel.PayloadAnnulment, cert.lastPayload.Kind)
}

func TestAnnul_RechazoNoModificaDocumento(t *testing.T) {
	cert := &fakeCertifier{annulErr: domainfel.NewCertificationError(nil, "Error al anular documento")}
	out, err := newController(cert).Annul(context.Background(), certifiedInvoice())

	var certErr *domainfel.CertificationError
	require.ErrorAs(t, err, &certErr)
	assert.Nil(t, out)
}

func TestAnnul_RequiereCertificado(t *testing.T) {
	cert := &fakeCertifier{}
	_, err := newController(cert).Annul(context.Background(), pendingInvoice())

	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Problems, 2)
	assert.Zero(t, cert.annulCalls)
}

// ──────────────────────────────────────────────────────────────────────────────
// Query y consultas de receptor
// ──────────────────────────────────────────────────────────────────────────────

func TestQuery(t *testing.T) {
	res, err := newController(&fakeCertifier{}).Query(context.Background(), "co-1", "AAAA-BBBB")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Vigente", res.Status)
}

func TestQuery_SinUUID(t *testing.T) {
	_, err := newController(&fakeCertifier{}).Query(context.Background(), "co-1", "  ")
	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestQuery_FallaRemotaEsResultadoFallido(t *testing.T) {
	cert := &fakeCertifier{statusRes: &domainfel.Result{Success: false, Message: "Error al consultar: timeout"}}
	res, err := newController(cert).Query(context.Background(), "co-1", "AAAA-BBBB")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestLookupTaxID(t *testing.T) {
	cert := &fakeCertifier{nitInfo: &domainfel.TaxpayerInfo{NIT: "12345679", Name: "MI EMPRESA"}}
	info, err := newController(cert).LookupTaxID(context.Background(), "co-1", "1234567-9")
	require.NoError(t, err)
	assert.Equal(t, "MI EMPRESA", info.Name)
	assert.Equal(t, "12345679", cert.lastNIT, "se envía el NIT limpio")
}

func TestLookupTaxID_DigitoVerificadorInvalido(t *testing.T) {
	cert := &fakeCertifier{}
	_, err := newController(cert).LookupTaxID(context.Background(), "co-1", "1234567-1")
	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, cert.lastNIT)
}

func TestLookupTaxID_ConsumidorFinalSinLlamadaRemota(t *testing.T) {
	cert := &fakeCertifier{}
	info, err := newController(cert).LookupTaxID(context.Background(), "co-1", "cf")
	require.NoError(t, err)
	assert.Equal(t, "CF", info.NIT)
	assert.Equal(t, "Consumidor Final", info.Name)
	assert.Empty(t, cert.lastNIT)
}

func TestLookupPersonID(t *testing.T) {
	cert := &fakeCertifier{cuiInfo: &domainfel.PersonInfo{CUI: "1234567890101", Name: "MARIA"}}
	info, err := newController(cert).LookupPersonID(context.Background(), "co-1", "1234 56789 0101")
	require.NoError(t, err)
	assert.Equal(t, "MARIA", info.Name)
	assert.Equal(t, "1234567890101", cert.lastCUI)
}

func TestLookupPersonID_LongitudInvalida(t *testing.T) {
	_, err := newController(&fakeCertifier{}).LookupPersonID(context.Background(), "co-1", "12345")
	var vErr *domainfel.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestConsultas_RechazosSeRegistranEnElLog(t *testing.T) {
	var buf bytes.Buffer
	ctrl := billing.NewFELController(
		infrafel.NewXMLBuilder(func() time.Time { return fixedNow }),
		&fakeCertifier{},
		billing.NewStaticConfigSource(testConfig()),
		logger.New(logger.Config{Level: "warn", Output: &buf}),
	)
	ctx := context.Background()

	_, err := ctrl.Query(ctx, "co-1", " ")
	require.Error(t, err)
	_, err = ctrl.LookupTaxID(ctx, "co-1", "1234567-1")
	require.Error(t, err)
	_, err = ctrl.LookupPersonID(ctx, "co-1", "12345")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"op":"query"`)
	assert.Contains(t, out, `"op":"lookup_nit"`)
	assert.Contains(t, out, `"op":"lookup_cui"`)
}
