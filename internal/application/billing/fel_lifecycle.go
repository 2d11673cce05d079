package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	infrafel "github.com/jhoicas/fel-certificador/internal/infrastructure/fel"
	sat "github.com/jhoicas/fel-certificador/pkg/fel"
	"github.com/jhoicas/fel-certificador/pkg/logger"
)

// Outcome resultado de una operación del ciclo de vida.
// Patch es nil cuando la operación no modifica el documento (validación fallida,
// consulta, anulación rechazada).
type Outcome struct {
	Result *domainfel.Result
	Patch  *domainfel.Patch
}

// FELController máquina de estados FEL del documento:
//
//	pending ──certify──▶ certified ──annul──▶ cancelled
//	   │                    ▲
//	   └──certify (falla)──▶ error ──retry──┘
//
// Trabaja sobre un snapshot: no persiste nada, devuelve el Patch que el llamador
// aplica con compare-and-set sobre Patch.From.
type FELController struct {
	builder   DocumentBuilder
	certifier Certifier
	configs   ConfigSource
	log       *logger.Logger
}

// NewFELController construye el controlador con sus dependencias.
func NewFELController(builder DocumentBuilder, certifier Certifier, configs ConfigSource, log *logger.Logger) *FELController {
	if log == nil {
		log = logger.Nop()
	}
	return &FELController{
		builder:   builder,
		certifier: certifier,
		configs:   configs,
		log:       log.Component("fel-lifecycle"),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// Certificación
// ═══════════════════════════════════════════════════════════════════════════════

// Certify valida, construye el XML y lo envía al certificador.
// Precondiciones incumplidas → ValidationError sin Patch.
// Fallas de construcción o del certificador → Patch a error con el mensaje, y el error.
func (c *FELController) Certify(ctx context.Context, doc *entity.FELDocument) (*Outcome, error) {
	if doc == nil {
		return nil, domainfel.NewValidationError([]string{"documento nulo"})
	}
	return c.certify(ctx, doc, doc.EffectiveStatus())
}

// Retry reintenta un documento en estado error: limpia el mensaje, lo pasa a
// pending y certifica. El Patch resultante parte del estado persistido (error).
func (c *FELController) Retry(ctx context.Context, doc *entity.FELDocument) (*Outcome, error) {
	if err := domainfel.ValidateRetry(doc); err != nil {
		c.logRejected("retry", doc, err)
		return nil, err
	}

	pending := *doc
	pending.FEL.Status = entity.FELStatusPending
	pending.FEL.ErrorMessage = ""

	c.log.Info().Str("doc_id", doc.ID).Str("doc", doc.Name).Msg("FEL: reintentando certificación")
	return c.certify(ctx, &pending, entity.FELStatusError)
}

func (c *FELController) certify(ctx context.Context, doc *entity.FELDocument, from entity.FELStatus) (*Outcome, error) {
	cfg, err := c.configs.Resolve(ctx, doc.CompanyID)
	if err != nil {
		c.log.Error().Err(err).Str("doc_id", doc.ID).Msg("FEL: no se pudo resolver la configuración")
		return nil, fmt.Errorf("resolver configuración FEL: %w", err)
	}

	if err := domainfel.ValidateCertify(doc, cfg); err != nil {
		c.logRejected("certify", doc, err)
		return nil, err
	}

	// markError arma el Patch a error conservando lo que ya se había enviado.
	markError := func(step string, xmlSent string, cause error) (*Outcome, error) {
		state := doc.FEL
		state.Status = entity.FELStatusError
		state.ErrorMessage = cause.Error()
		if xmlSent != "" {
			state.XMLSent = xmlSent
		}
		c.log.Error().
			Err(cause).
			Str("doc_id", doc.ID).Str("doc", doc.Name).Str("step", step).
			Str("from", string(from)).
			Msg("FEL: certificación fallida")
		return &Outcome{Patch: &domainfel.Patch{From: from, State: state}}, cause
	}

	payload, err := c.builder.BuildCertification(doc, cfg)
	if err != nil {
		var bErr *domainfel.BuildError
		if !errors.As(err, &bErr) {
			err = &domainfel.BuildError{Err: err}
		}
		return markError("xml-build", "", err)
	}

	c.log.Info().
		Str("doc_id", doc.ID).Str("doc", doc.Name).Str("tipo", payload.DocType).
		Str("gran_total", payload.Totals.GrandTotal.StringFixed(2)).
		Msg("FEL: XML generado, enviando a certificar")

	res, err := c.certifier.Certify(ctx, cfg, payload)
	if err != nil {
		return markError("submit", payload.String(), err)
	}
	if res == nil || !res.Success {
		cErr := domainfel.NewCertificationError(nil, "Error en la certificación")
		if res != nil {
			cErr = domainfel.NewCertificationError(res.Errors, orDefault(res.Message, "Error en la certificación"))
		}
		return markError("submit", payload.String(), cErr)
	}

	state := entity.FELState{
		Status:       entity.FELStatusCertified,
		UUID:         res.UUID,
		Series:       res.Series,
		Number:       res.Number,
		AccessNumber: res.AccessNumber,
		CertifiedAt:  res.CertifiedAt,
		XMLSent:      payload.String(),
		XMLResponse:  res.CertifiedXML,
		PDFURL:       res.PDFURL,
	}

	c.log.Info().
		Str("doc_id", doc.ID).Str("doc", doc.Name).
		Str("uuid", res.UUID).Str("serie", res.Series).Str("numero", res.Number).
		Str("transaction_id", res.TransactionID).
		Msg("FEL: documento certificado")
	return &Outcome{Result: res, Patch: &domainfel.Patch{From: from, State: state}}, nil
}

// Preview genera el XML de certificación sin enviarlo (diagnóstico, felctl build).
// Solo exige que haya líneas certificables; no valida el estado.
func (c *FELController) Preview(ctx context.Context, doc *entity.FELDocument) (infrafel.Payload, error) {
	if doc == nil {
		return infrafel.Payload{}, domainfel.NewValidationError([]string{"documento nulo"})
	}
	cfg, err := c.configs.Resolve(ctx, doc.CompanyID)
	if err != nil {
		return infrafel.Payload{}, fmt.Errorf("resolver configuración FEL: %w", err)
	}
	payload, err := c.builder.BuildCertification(doc, cfg)
	if err != nil {
		c.log.Warn().Err(err).Str("doc_id", doc.ID).Msg("FEL: vista previa fallida")
		return infrafel.Payload{}, err
	}
	return payload, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// Anulación
// ═══════════════════════════════════════════════════════════════════════════════

// Annul anula un documento certificado. Si el certificador rechaza la anulación
// el documento queda como estaba (sin Patch) y se devuelve el error.
func (c *FELController) Annul(ctx context.Context, doc *entity.FELDocument) (*Outcome, error) {
	if err := domainfel.ValidateAnnul(doc); err != nil {
		c.logRejected("annul", doc, err)
		return nil, err
	}

	cfg, err := c.configs.Resolve(ctx, doc.CompanyID)
	if err != nil {
		c.log.Error().Err(err).Str("doc_id", doc.ID).Msg("FEL: no se pudo resolver la configuración")
		return nil, fmt.Errorf("resolver configuración FEL: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		c.logRejected("annul", doc, err)
		return nil, err
	}

	payload, err := c.builder.BuildAnnulment(doc, cfg)
	if err != nil {
		c.log.Error().Err(err).Str("doc_id", doc.ID).Msg("FEL: no se pudo generar el XML de anulación")
		return nil, err
	}

	res, err := c.certifier.Annul(ctx, cfg, payload)
	if err != nil {
		c.log.Error().Err(err).Str("doc_id", doc.ID).Str("uuid", doc.FEL.UUID).Msg("FEL: anulación rechazada")
		return nil, err
	}
	if res == nil || !res.Success {
		cErr := domainfel.NewCertificationError(nil, "Error al anular documento")
		if res != nil {
			cErr = domainfel.NewCertificationError(res.Errors, orDefault(res.Message, "Error al anular documento"))
		}
		c.log.Error().Err(cErr).Str("doc_id", doc.ID).Str("uuid", doc.FEL.UUID).Msg("FEL: anulación rechazada")
		return nil, cErr
	}

	state := doc.FEL
	state.Status = entity.FELStatusCancelled
	state.ErrorMessage = ""

	c.log.Info().
		Str("doc_id", doc.ID).Str("doc", doc.Name).Str("uuid", doc.FEL.UUID).
		Str("transaction_id", res.TransactionID).
		Msg("FEL: documento anulado")
	return &Outcome{
		Result: res,
		Patch:  &domainfel.Patch{From: entity.FELStatusCertified, State: state},
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// Consultas
// ═══════════════════════════════════════════════════════════════════════════════

// Query consulta el estado de un DTE por UUID. No modifica nada.
func (c *FELController) Query(ctx context.Context, companyID, uuid string) (*domainfel.Result, error) {
	uuid = strings.TrimSpace(uuid)
	if err := domainfel.ValidateQuery(uuid); err != nil {
		c.logRejected("query", nil, err)
		return nil, err
	}
	cfg, err := c.resolveWithCredentials(ctx, "query", companyID)
	if err != nil {
		return nil, err
	}

	res := c.certifier.QueryStatus(ctx, cfg, uuid)
	c.log.Info().Str("uuid", uuid).Bool("success", res.Success).Str("estado", res.Status).Msg("FEL: consulta de DTE")
	return res, nil
}

// LookupTaxID consulta el nombre registrado de un NIT. CF se resuelve sin llamada remota.
func (c *FELController) LookupTaxID(ctx context.Context, companyID, nit string) (*domainfel.TaxpayerInfo, error) {
	if strings.EqualFold(strings.TrimSpace(nit), sat.ReceptorConsumidorFinal) {
		return &domainfel.TaxpayerInfo{NIT: sat.ReceptorConsumidorFinal, Name: sat.NombreConsumidorFinal}, nil
	}
	clean := sat.CleanNIT(nit)
	if clean == "" {
		vErr := domainfel.NewValidationError([]string{"debe proporcionar un NIT"})
		c.logRejected("lookup_nit", nil, vErr)
		return nil, vErr
	}
	if err := sat.ValidateNIT(clean); err != nil {
		vErr := domainfel.NewValidationError([]string{err.Error()})
		c.logRejected("lookup_nit", nil, vErr)
		return nil, vErr
	}
	cfg, err := c.resolveWithCredentials(ctx, "lookup_nit", companyID)
	if err != nil {
		return nil, err
	}

	info, err := c.certifier.LookupNIT(ctx, cfg, clean)
	if err != nil {
		c.log.Error().Err(err).Str("nit", clean).Msg("FEL: consulta de NIT fallida")
		return nil, err
	}
	return info, nil
}

// LookupPersonID consulta una persona por CUI (13 dígitos).
func (c *FELController) LookupPersonID(ctx context.Context, companyID, cui string) (*domainfel.PersonInfo, error) {
	clean := sat.CleanCUI(cui)
	if err := sat.ValidateCUI(clean); err != nil {
		vErr := domainfel.NewValidationError([]string{err.Error()})
		c.logRejected("lookup_cui", nil, vErr)
		return nil, vErr
	}
	cfg, err := c.resolveWithCredentials(ctx, "lookup_cui", companyID)
	if err != nil {
		return nil, err
	}

	info, err := c.certifier.LookupCUI(ctx, cfg, clean)
	if err != nil {
		c.log.Error().Err(err).Msg("FEL: consulta de CUI fallida")
		return nil, err
	}
	return info, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (c *FELController) resolveWithCredentials(ctx context.Context, op, companyID string) (domainfel.Config, error) {
	cfg, err := c.configs.Resolve(ctx, companyID)
	if err != nil {
		c.log.Error().Err(err).Str("op", op).Str("company_id", companyID).Msg("FEL: no se pudo resolver la configuración")
		return domainfel.Config{}, fmt.Errorf("resolver configuración FEL: %w", err)
	}
	if err := domainfel.NewValidationError(cfg.CredentialProblems()); err != nil {
		c.logRejected(op, nil, err)
		return domainfel.Config{}, err
	}
	return cfg, nil
}

func (c *FELController) logRejected(op string, doc *entity.FELDocument, err error) {
	ev := c.log.Warn().Err(err).Str("op", op)
	if doc != nil {
		ev = ev.Str("doc_id", doc.ID).Str("doc", doc.Name).Str("estado", string(doc.EffectiveStatus()))
	}
	ev.Msg("FEL: precondiciones no cumplidas")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
