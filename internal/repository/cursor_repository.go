package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
)

type cursorRepository struct {
	db DBTX
}

func (r *cursorRepository) Get(ctx context.Context, source domain.LeadSource) (domain.RotationCursor, error) {
	const query = `
        SELECT source, COALESCE(agent_id, ''), version, updated_at
        FROM rotation_cursor WHERE source=$1`

	cursor := domain.RotationCursor{Source: source}
	err := r.db.QueryRow(ctx, query, source).Scan(
		&cursor.Source,
		&cursor.AgentID,
		&cursor.Version,
		&cursor.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return domain.RotationCursor{Source: source}, nil
	}
	if err != nil {
		return domain.RotationCursor{}, classify(err)
	}
	return cursor, nil
}

func (r *cursorRepository) CompareAndSwap(ctx context.Context, source domain.LeadSource, expectedVersion int64, agentID string) (int64, error) {
	var (
		version int64
		err     error
	)
	if expectedVersion == 0 {
		// A concurrent first advance blocks on the unique key and then inserts nothing.
		const insert = `
        INSERT INTO rotation_cursor (source, agent_id, version)
        VALUES ($1,$2,1)
        ON CONFLICT (source) DO NOTHING
        RETURNING version`
		err = r.db.QueryRow(ctx, insert, source, agentID).Scan(&version)
	} else {
		const update = `
        UPDATE rotation_cursor
        SET agent_id=$2, version=version+1, updated_at=NOW()
        WHERE source=$1 AND version=$3
        RETURNING version`
		err = r.db.QueryRow(ctx, update, source, agentID, expectedVersion).Scan(&version)
	}
	if err == pgx.ErrNoRows {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, classify(err)
	}
	return version, nil
}
