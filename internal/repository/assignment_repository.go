package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/lead-router/internal/domain"
)

type assignmentRepository struct {
	db DBTX
}

func (r *assignmentRepository) Append(ctx context.Context, record *domain.AssignmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO assignment_records (id, lead_id, agent_id, previous_agent_id, actor_id, reason)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		record.ID,
		record.LeadID,
		record.AgentID,
		record.PreviousAgentID,
		record.ActorID,
		record.Reason,
	).Scan(&record.CreatedAt)
	return classify(err)
}

func (r *assignmentRepository) ListByLead(ctx context.Context, leadID string) ([]domain.AssignmentRecord, error) {
	const query = `
        SELECT id, lead_id, agent_id, previous_agent_id, actor_id, reason, created_at
        FROM assignment_records WHERE lead_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, leadID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.AssignmentRecord
	for rows.Next() {
		var record domain.AssignmentRecord
		if err := rows.Scan(
			&record.ID,
			&record.LeadID,
			&record.AgentID,
			&record.PreviousAgentID,
			&record.ActorID,
			&record.Reason,
			&record.CreatedAt,
		); err != nil {
			return nil, classify(err)
		}
		result = append(result, record)
	}
	return result, classify(rows.Err())
}
