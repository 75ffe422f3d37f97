package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
)

type leadRepository struct {
	db DBTX
}

const leadColumns = `
        id, source, external_ref, full_name, email, phone, status,
        assigned_agent_id, assignment_failure, created_at, updated_at`

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var lead domain.Lead
	if err := row.Scan(
		&lead.ID,
		&lead.Source,
		&lead.ExternalRef,
		&lead.FullName,
		&lead.Email,
		&lead.Phone,
		&lead.Status,
		&lead.AssignedAgentID,
		&lead.AssignmentFailure,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *leadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = domain.LeadStatusNew
	}
	const query = `
        INSERT INTO leads (id, source, external_ref, full_name, email, phone, status, assigned_agent_id, assignment_failure)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		lead.ID,
		lead.Source,
		lead.ExternalRef,
		lead.FullName,
		lead.Email,
		lead.Phone,
		lead.Status,
		lead.AssignedAgentID,
		lead.AssignmentFailure,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	return classify(err)
}

func (r *leadRepository) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `SELECT`+leadColumns+` FROM leads WHERE id=$1`, id))
	if err != nil {
		return nil, classify(err)
	}
	return lead, nil
}

func (r *leadRepository) GetForUpdate(ctx context.Context, id string) (*domain.Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `SELECT`+leadColumns+` FROM leads WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, classify(err)
	}
	return lead, nil
}

func (r *leadRepository) GetByExternalRef(ctx context.Context, source domain.LeadSource, ref string) (*domain.Lead, error) {
	query := `SELECT` + leadColumns + ` FROM leads WHERE source=$1 AND external_ref=$2`
	lead, err := scanLead(r.db.QueryRow(ctx, query, source, ref))
	if err != nil {
		return nil, classify(err)
	}
	return lead, nil
}

func (r *leadRepository) UpdateAssignment(ctx context.Context, lead *domain.Lead) error {
	const query = `
        UPDATE leads SET assigned_agent_id=$2, assignment_failure=$3, updated_at=NOW()
        WHERE id=$1
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query, lead.ID, lead.AssignedAgentID, lead.AssignmentFailure).Scan(&lead.UpdatedAt)
	return classify(err)
}

func (r *leadRepository) UpdateStatus(ctx context.Context, lead *domain.Lead) error {
	const query = `
        UPDATE leads SET status=$2, updated_at=NOW()
        WHERE id=$1
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query, lead.ID, lead.Status).Scan(&lead.UpdatedAt)
	return classify(err)
}

func (r *leadRepository) ListUnassigned(ctx context.Context, filter LeadFilter) ([]domain.Lead, error) {
	query := `SELECT` + leadColumns + ` FROM leads`
	args := []any{}
	clauses := []string{"assigned_agent_id IS NULL"}

	if filter.Source != nil {
		args = append(args, *filter.Source)
		clauses = append(clauses, fmt.Sprintf("source=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at>=$%d", len(args)))
	}
	query += " WHERE " + strings.Join(clauses, " AND ")
	query += " ORDER BY created_at ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, *lead)
	}
	return result, classify(rows.Err())
}

func (r *leadRepository) AddNote(ctx context.Context, note *domain.LeadNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO lead_notes (id, lead_id, author_id, content)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	err := r.db.QueryRow(ctx, query, note.ID, note.LeadID, note.AuthorID, note.Content).Scan(&note.CreatedAt)
	return classify(err)
}

func (r *leadRepository) ListNotes(ctx context.Context, leadID string) ([]domain.LeadNote, error) {
	const query = `
        SELECT id, lead_id, author_id, content, created_at
        FROM lead_notes WHERE lead_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, leadID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.LeadNote
	for rows.Next() {
		var note domain.LeadNote
		if err := rows.Scan(&note.ID, &note.LeadID, &note.AuthorID, &note.Content, &note.CreatedAt); err != nil {
			return nil, classify(err)
		}
		result = append(result, note)
	}
	return result, classify(rows.Err())
}
