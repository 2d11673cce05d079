package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/fel-certificador/internal/domain"
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	"github.com/jhoicas/fel-certificador/internal/domain/fel"
	"github.com/jhoicas/fel-certificador/internal/domain/repository"
)

var _ repository.FELDocumentRepository = (*FELDocumentRepo)(nil)

// FELDocumentRepo implementación de FELDocumentRepository sobre fel_documents / fel_document_lines.
// Emisor, receptor, origen e impuestos de línea se guardan como JSONB.
type FELDocumentRepo struct {
	q   Querier
	now func() time.Time
}

// NewFELDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFELDocumentRepository(q Querier) *FELDocumentRepo {
	return &FELDocumentRepo{q: q, now: time.Now}
}

const felDocumentColumns = `
	id, company_id, name, kind, posted, currency, invoice_date, narration, ref,
	issuer, recipient, origin,
	fel_status, fel_uuid, fel_series, fel_number, fel_access_number, fel_certified_at,
	fel_xml_sent, fel_xml_response, fel_pdf_url, fel_error_message,
	created_at, updated_at`

// GetByID obtiene cabecera, estado FEL y líneas (en orden de posición).
func (r *FELDocumentRepo) GetByID(ctx context.Context, id string) (*entity.FELDocument, error) {
	query := `SELECT ` + felDocumentColumns + ` FROM fel_documents WHERE id = $1`
	doc, err := scanFELDocument(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get fel document: %w", err)
	}

	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

func (r *FELDocumentRepo) lines(ctx context.Context, documentID string) ([]entity.FELLine, error) {
	const query = `
		SELECT quantity, unit_price, discount_pct, taxes, good_or_service,
		       description, unit_of_measure, display_type
		FROM fel_document_lines WHERE document_id = $1 ORDER BY position`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list fel document lines: %w", err)
	}
	defer rows.Close()

	var list []entity.FELLine
	for rows.Next() {
		var l entity.FELLine
		var taxes []byte
		if err := rows.Scan(
			&l.Quantity, &l.UnitPrice, &l.DiscountPct, &taxes, &l.GoodOrService,
			&l.Description, &l.UnitOfMeasure, &l.DisplayType,
		); err != nil {
			return nil, fmt.Errorf("scan fel line: %w", err)
		}
		if len(taxes) > 0 {
			if err := json.Unmarshal(taxes, &l.Taxes); err != nil {
				return nil, fmt.Errorf("decode line taxes: %w", err)
			}
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// Save inserta o reemplaza el documento y todas sus líneas en una sola transacción.
// Al reemplazar no toca fel_* ni created_at (el estado FEL solo cambia vía ApplyPatch)
// y un documento certificado o anulado no se reemplaza: domain.ErrConflict.
func (r *FELDocumentRepo) Save(ctx context.Context, doc *entity.FELDocument) error {
	issuer, err := json.Marshal(doc.Issuer)
	if err != nil {
		return fmt.Errorf("encode issuer: %w", err)
	}
	recipient, err := marshalNullable(doc.Recipient)
	if err != nil {
		return fmt.Errorf("encode recipient: %w", err)
	}
	origin, err := marshalNullable(doc.Origin)
	if err != nil {
		return fmt.Errorf("encode origin: %w", err)
	}
	status := doc.EffectiveStatus()

	tx, err := r.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO fel_documents (
			id, company_id, name, kind, posted, currency, invoice_date, narration, ref,
			issuer, recipient, origin,
			fel_status, fel_uuid, fel_series, fel_number, fel_access_number, fel_certified_at,
			fel_xml_sent, fel_xml_response, fel_pdf_url, fel_error_message,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			name         = EXCLUDED.name,
			kind         = EXCLUDED.kind,
			posted       = EXCLUDED.posted,
			currency     = EXCLUDED.currency,
			invoice_date = EXCLUDED.invoice_date,
			narration    = EXCLUDED.narration,
			ref          = EXCLUDED.ref,
			issuer       = EXCLUDED.issuer,
			recipient    = EXCLUDED.recipient,
			origin       = EXCLUDED.origin,
			updated_at   = EXCLUDED.updated_at
		WHERE fel_documents.company_id = EXCLUDED.company_id
		  AND fel_documents.fel_status NOT IN ('certified', 'cancelled')`
	tag, err := tx.Exec(ctx, upsert,
		doc.ID, doc.CompanyID, doc.Name, string(doc.Kind), doc.Posted, doc.Currency,
		doc.InvoiceDate, doc.Narration, doc.Ref,
		issuer, recipient, origin,
		string(status), nullIfEmpty(doc.FEL.UUID), nullIfEmpty(doc.FEL.Series), nullIfEmpty(doc.FEL.Number),
		nullIfEmpty(doc.FEL.AccessNumber), doc.FEL.CertifiedAt,
		nullIfEmpty(doc.FEL.XMLSent), nullIfEmpty(doc.FEL.XMLResponse), nullIfEmpty(doc.FEL.PDFURL),
		nullIfEmpty(doc.FEL.ErrorMessage),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: uuid FEL duplicado: %v", domain.ErrConflict, err)
		}
		return fmt.Errorf("upsert fel document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: el documento %s ya fue certificado o pertenece a otra empresa", domain.ErrConflict, doc.Name)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM fel_document_lines WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete fel lines: %w", err)
	}
	const insertLine = `
		INSERT INTO fel_document_lines (
			document_id, position, quantity, unit_price, discount_pct, taxes,
			good_or_service, description, unit_of_measure, display_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for i, l := range doc.Lines {
		taxes, err := json.Marshal(nonNilTaxes(l.Taxes))
		if err != nil {
			return fmt.Errorf("encode line taxes: %w", err)
		}
		if _, err := tx.Exec(ctx, insertLine,
			doc.ID, i+1, l.Quantity, l.UnitPrice, l.DiscountPct, taxes,
			l.GoodOrService, l.Description, l.UnitOfMeasure, l.DisplayType,
		); err != nil {
			return fmt.Errorf("insert fel line %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ApplyPatch escribe el estado FEL solo si fel_status sigue siendo patch.From.
func (r *FELDocumentRepo) ApplyPatch(ctx context.Context, id string, patch fel.Patch) error {
	const query = `
		UPDATE fel_documents
		SET fel_status        = $3,
		    fel_uuid          = $4,
		    fel_series        = $5,
		    fel_number        = $6,
		    fel_access_number = $7,
		    fel_certified_at  = $8,
		    fel_xml_sent      = $9,
		    fel_xml_response  = $10,
		    fel_pdf_url       = $11,
		    fel_error_message = $12,
		    updated_at        = $13
		WHERE id = $1 AND fel_status = $2`
	s := patch.State
	tag, err := r.q.Exec(ctx, query,
		id, string(patch.From),
		string(s.Status), nullIfEmpty(s.UUID), nullIfEmpty(s.Series), nullIfEmpty(s.Number),
		nullIfEmpty(s.AccessNumber), s.CertifiedAt,
		nullIfEmpty(s.XMLSent), nullIfEmpty(s.XMLResponse), nullIfEmpty(s.PDFURL),
		nullIfEmpty(s.ErrorMessage), r.now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: uuid FEL %s ya asignado a otro documento", domain.ErrConflict, s.UUID)
		}
		return fmt.Errorf("apply fel patch: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = r.q.QueryRow(ctx, `SELECT fel_status FROM fel_documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read fel status: %w", err)
	}
	return fmt.Errorf("%w: estado FEL esperado %s, actual %s", domain.ErrConflict, patch.From, current)
}

// ListByCompany lista cabeceras (sin líneas) ordenadas por fecha descendente.
func (r *FELDocumentRepo) ListByCompany(ctx context.Context, companyID string, status entity.FELStatus, limit, offset int) ([]*entity.FELDocument, int, error) {
	var total int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM fel_documents WHERE company_id = $1 AND ($2 = '' OR fel_status = $2)`,
		companyID, string(status),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count fel documents: %w", err)
	}

	query := `SELECT ` + felDocumentColumns + `
		FROM fel_documents
		WHERE company_id = $1 AND ($2 = '' OR fel_status = $2)
		ORDER BY invoice_date DESC, name DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.q.Query(ctx, query, companyID, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list fel documents: %w", err)
	}
	defer rows.Close()

	var list []*entity.FELDocument
	for rows.Next() {
		doc, err := scanFELDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan fel document: %w", err)
		}
		list = append(list, doc)
	}
	return list, total, rows.Err()
}

// scanFELDocument lee una fila con felDocumentColumns (pgx.Row o pgx.Rows).
func scanFELDocument(row pgx.Row) (*entity.FELDocument, error) {
	var doc entity.FELDocument
	var kind, status string
	var issuer, recipient, origin []byte
	var felUUID, series, number, access, xmlSent, xmlResp, pdfURL, errMsg *string

	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.Name, &kind, &doc.Posted, &doc.Currency,
		&doc.InvoiceDate, &doc.Narration, &doc.Ref,
		&issuer, &recipient, &origin,
		&status, &felUUID, &series, &number, &access, &doc.FEL.CertifiedAt,
		&xmlSent, &xmlResp, &pdfURL, &errMsg,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Kind = entity.DocumentKind(kind)
	doc.FEL.Status = entity.FELStatus(status)
	doc.FEL.UUID = derefStr(felUUID)
	doc.FEL.Series = derefStr(series)
	doc.FEL.Number = derefStr(number)
	doc.FEL.AccessNumber = derefStr(access)
	doc.FEL.XMLSent = derefStr(xmlSent)
	doc.FEL.XMLResponse = derefStr(xmlResp)
	doc.FEL.PDFURL = derefStr(pdfURL)
	doc.FEL.ErrorMessage = derefStr(errMsg)

	if err := json.Unmarshal(issuer, &doc.Issuer); err != nil {
		return nil, fmt.Errorf("decode issuer: %w", err)
	}
	if len(recipient) > 0 {
		doc.Recipient = &entity.Party{}
		if err := json.Unmarshal(recipient, doc.Recipient); err != nil {
			return nil, fmt.Errorf("decode recipient: %w", err)
		}
	}
	if len(origin) > 0 {
		doc.Origin = &entity.OriginRef{}
		if err := json.Unmarshal(origin, doc.Origin); err != nil {
			return nil, fmt.Errorf("decode origin: %w", err)
		}
	}
	return &doc, nil
}

// marshalNullable devuelve nil (NULL) para punteros nil.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nonNilTaxes(t []entity.LineTax) []entity.LineTax {
	if t == nil {
		return []entity.LineTax{}
	}
	return t
}
