package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/fel-certificador/internal/application/dto"
	"github.com/jhoicas/fel-certificador/internal/domain"
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	"github.com/jhoicas/fel-certificador/internal/domain/repository"
	"github.com/jhoicas/fel-certificador/pkg/logger"
)

// DocumentUseCase casos de uso FEL sobre documentos persistidos:
// carga el snapshot, ejecuta el controlador y aplica el Patch con compare-and-set.
type DocumentUseCase struct {
	repo repository.FELDocumentRepository
	ctrl *FELController
	log  *logger.Logger
	now  func() time.Time
}

// NewDocumentUseCase construye el caso de uso.
func NewDocumentUseCase(repo repository.FELDocumentRepository, ctrl *FELController, log *logger.Logger) *DocumentUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &DocumentUseCase{repo: repo, ctrl: ctrl, log: log.Component("fel-documents"), now: time.Now}
}

// Import guarda (alta o reemplazo) el snapshot de un documento. Un documento
// ya certificado no puede reemplazarse.
func (uc *DocumentUseCase) Import(ctx context.Context, companyID string, doc *entity.FELDocument) (*entity.FELDocument, error) {
	if doc == nil || strings.TrimSpace(doc.Name) == "" {
		return nil, domain.ErrInvalidInput
	}
	if !doc.Kind.Certifiable() && doc.Kind != entity.KindReceipt {
		return nil, domain.ErrInvalidInput
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if companyID != "" {
		doc.CompanyID = companyID
	}

	existing, err := uc.repo.GetByID(ctx, doc.ID)
	switch {
	case err == nil:
		if existing.CompanyID != doc.CompanyID {
			return nil, domain.ErrNotFound
		}
		if s := existing.EffectiveStatus(); s == entity.FELStatusCertified || s == entity.FELStatusCancelled {
			return nil, fmt.Errorf("%w: el documento %s ya fue certificado", domain.ErrConflict, existing.Name)
		}
		doc.CreatedAt = existing.CreatedAt
		doc.FEL = existing.FEL
	case errors.Is(err, domain.ErrNotFound):
		doc.CreatedAt = uc.now()
		if doc.FEL.Status == "" {
			doc.FEL.Status = entity.FELStatusPending
		}
		if !doc.FEL.Status.Valid() {
			return nil, fmt.Errorf("%w: estado FEL desconocido %q", domain.ErrInvalidInput, doc.FEL.Status)
		}
	default:
		return nil, err
	}
	doc.UpdatedAt = uc.now()

	if err := uc.repo.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get devuelve el documento si pertenece a la empresa.
func (uc *DocumentUseCase) Get(ctx context.Context, companyID, id string) (*entity.FELDocument, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if companyID != "" && doc.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// List lista documentos de la empresa filtrando por estado FEL (vacío = todos).
func (uc *DocumentUseCase) List(ctx context.Context, companyID string, status entity.FELStatus, page dto.PageRequest) (*dto.FELDocumentListResponse, error) {
	if status != "" && !status.Valid() {
		return nil, domain.ErrInvalidInput
	}
	page.DefaultPage()
	docs, total, err := uc.repo.ListByCompany(ctx, companyID, status, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := &dto.FELDocumentListResponse{
		Items: make([]dto.FELDocumentSummary, 0, len(docs)),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}
	for _, d := range docs {
		out.Items = append(out.Items, dto.NewFELDocumentSummary(d))
	}
	return out, nil
}

// Certify certifica el documento y persiste el resultado (certified o error).
func (uc *DocumentUseCase) Certify(ctx context.Context, companyID, id string) (*dto.FELOperationResponse, error) {
	return uc.run(ctx, companyID, id, "certify", uc.ctrl.Certify)
}

// Annul anula el documento certificado.
func (uc *DocumentUseCase) Annul(ctx context.Context, companyID, id string) (*dto.FELOperationResponse, error) {
	return uc.run(ctx, companyID, id, "annul", uc.ctrl.Annul)
}

// Retry reintenta un documento en estado error.
func (uc *DocumentUseCase) Retry(ctx context.Context, companyID, id string) (*dto.FELOperationResponse, error) {
	return uc.run(ctx, companyID, id, "retry", uc.ctrl.Retry)
}

// Status devuelve el estado local y, si el documento tiene UUID, la consulta al certificador.
func (uc *DocumentUseCase) Status(ctx context.Context, companyID, id string) (*dto.FELStatusResponse, error) {
	doc, err := uc.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	out := &dto.FELStatusResponse{DocumentID: doc.ID, Status: doc.EffectiveStatus(), UUID: doc.FEL.UUID}
	if doc.FEL.UUID == "" {
		return out, nil
	}
	remote, err := uc.ctrl.Query(ctx, doc.CompanyID, doc.FEL.UUID)
	if err != nil {
		return nil, err
	}
	out.Remote = remote
	return out, nil
}

// Preview genera el XML del documento sin enviarlo.
func (uc *DocumentUseCase) Preview(ctx context.Context, companyID, id string) (*dto.XMLPreviewResponse, error) {
	doc, err := uc.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	payload, err := uc.ctrl.Preview(ctx, doc)
	if err != nil {
		return nil, err
	}
	digest, err := payload.Digest()
	if err != nil {
		uc.log.Warn().Err(err).Str("doc_id", doc.ID).Msg("FEL: digest no disponible")
	}
	return &dto.XMLPreviewResponse{
		DocumentID: doc.ID,
		DocType:    payload.DocType,
		Digest:     digest,
		XML:        payload.String(),
		Totals:     dto.NewTotalsResponse(payload.Totals),
	}, nil
}

// LookupTaxID consulta un NIT en el certificador.
func (uc *DocumentUseCase) LookupTaxID(ctx context.Context, companyID, nit string) (*domainfel.TaxpayerInfo, error) {
	return uc.ctrl.LookupTaxID(ctx, companyID, nit)
}

// LookupPersonID consulta un CUI en el certificador.
func (uc *DocumentUseCase) LookupPersonID(ctx context.Context, companyID, cui string) (*domainfel.PersonInfo, error) {
	return uc.ctrl.LookupPersonID(ctx, companyID, cui)
}

type lifecycleOp func(ctx context.Context, doc *entity.FELDocument) (*Outcome, error)

// run carga, ejecuta la operación y aplica el Patch. Si la operación falló pero
// produjo Patch (estado error) el Patch se persiste igual y se devuelve el error original.
func (uc *DocumentUseCase) run(ctx context.Context, companyID, id, op string, fn lifecycleOp) (*dto.FELOperationResponse, error) {
	doc, err := uc.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	out, opErr := fn(ctx, doc)
	if out != nil && out.Patch != nil {
		if err := uc.repo.ApplyPatch(ctx, doc.ID, *out.Patch); err != nil {
			uc.log.Error().Err(err).Str("doc_id", doc.ID).Str("op", op).
				Str("from", string(out.Patch.From)).Str("to", string(out.Patch.State.Status)).
				Msg("FEL: no se pudo aplicar el resultado al documento")
			if opErr != nil {
				return nil, opErr
			}
			return nil, fmt.Errorf("aplicar resultado FEL a %s: %w", doc.Name, err)
		}
		doc.FEL = out.Patch.State
	}
	if opErr != nil {
		return nil, opErr
	}

	resp := &dto.FELOperationResponse{
		DocumentID: doc.ID,
		Status:     doc.EffectiveStatus(),
		FEL:        doc.FEL,
	}
	if out != nil && out.Result != nil {
		resp.Result = out.Result
		resp.Message = out.Result.Message
	}
	return resp, nil
}
