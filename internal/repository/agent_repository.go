package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
)

type agentRepository struct {
	db DBTX
}

const agentColumns = `
        a.id, a.name, a.email, a.role, a.active, a.version, a.updated_at,
        COALESCE((SELECT array_agg(s.source ORDER BY s.source) FROM agent_lead_sources s WHERE s.agent_id = a.id), '{}')`

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var (
		agent   domain.Agent
		sources []string
	)
	if err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.Role,
		&agent.Active,
		&agent.Version,
		&agent.UpdatedAt,
		&sources,
	); err != nil {
		return nil, err
	}
	agent.Sources = stringsToSources(sources)
	return &agent, nil
}

func (r *agentRepository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT` + agentColumns + ` FROM agents a WHERE a.id=$1`
	agent, err := scanAgent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err)
	}
	return agent, nil
}

func (r *agentRepository) ListEligible(ctx context.Context, source domain.LeadSource) ([]domain.Agent, error) {
	query := `SELECT` + agentColumns + `
        FROM agents a
        JOIN agent_lead_sources ls ON ls.agent_id = a.id
        WHERE ls.source=$1 AND a.active AND a.role=$2
        ORDER BY a.id COLLATE "C"`

	rows, err := r.db.Query(ctx, query, source, domain.AgentRoleAgent)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, *agent)
	}
	return result, classify(rows.Err())
}

// Save writes the agent row and its source set in one transaction, so readers never
// see the agent between the delete and the insert of its sources. The version-checked
// UPDATE holds the row lock until commit, which serializes concurrent rewrites.
func (r *agentRepository) Save(ctx context.Context, agent *domain.Agent, expectedVersion int64) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		if expectedVersion == 0 {
			const insert = `
        INSERT INTO agents (id, name, email, role, active, version)
        VALUES ($1,$2,$3,$4,$5,1)
        ON CONFLICT (id) DO NOTHING
        RETURNING version, updated_at`
			err = tx.QueryRow(ctx, insert,
				agent.ID,
				agent.Name,
				agent.Email,
				agent.Role,
				agent.Active,
			).Scan(&agent.Version, &agent.UpdatedAt)
		} else {
			const update = `
        UPDATE agents
        SET name=$2, email=$3, role=$4, active=$5, version=version+1, updated_at=NOW()
        WHERE id=$1 AND version=$6
        RETURNING version, updated_at`
			err = tx.QueryRow(ctx, update,
				agent.ID,
				agent.Name,
				agent.Email,
				agent.Role,
				agent.Active,
				expectedVersion,
			).Scan(&agent.Version, &agent.UpdatedAt)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM agent_lead_sources WHERE agent_id=$1`, agent.ID); err != nil {
			return err
		}
		if len(agent.Sources) == 0 {
			return nil
		}
		const insertSources = `
        INSERT INTO agent_lead_sources (agent_id, source)
        SELECT $1, unnest($2::text[])
        ON CONFLICT DO NOTHING`
		_, err = tx.Exec(ctx, insertSources, agent.ID, sourcesToStrings(agent.Sources))
		return err
	})
	return classify(err)
}
