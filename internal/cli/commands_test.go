package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository/memory"
	"github.com/spec-kit/lead-router/internal/service"
	"github.com/spec-kit/lead-router/internal/wire"
)

func newTestEnv(t *testing.T) (*Env, *wire.Services) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, a := range []*domain.Agent{
		{ID: "A", Name: "Anna", Email: "anna@example.com", Role: domain.AgentRoleAgent, Active: true, Sources: []domain.LeadSource{"aiquinto"}},
		{ID: "B", Name: "Bruno", Email: "bruno@example.com", Role: domain.AgentRoleAgent, Active: true, Sources: []domain.LeadSource{"aiquinto"}},
	} {
		require.NoError(t, store.Agents().Save(ctx, a, 0))
	}
	services := wire.Build(config.AssignmentConfig{
		Sources:     []string{"aiquinto", "prestitionline"},
		MaxAttempts: 5,
	}, store, wire.Options{})

	env := &Env{
		Services: func(context.Context) (*wire.Services, func(), error) {
			return services, func() {}, nil
		},
		Tokens: auth.NewTokenManager("secret", 5),
	}
	return env, services
}

func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(env)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEligibleAndCursor(t *testing.T) {
	env, services := newTestEnv(t)

	out, err := run(t, env, "eligible", "aiquinto")
	require.NoError(t, err)
	require.Contains(t, out, "anna@example.com")
	require.Contains(t, out, "bruno@example.com")

	out, err = run(t, env, "eligible", "prestitionline")
	require.NoError(t, err)
	require.Contains(t, out, "no eligible agents")

	_, err = run(t, env, "eligible", "nowhere")
	require.ErrorIs(t, err, domain.ErrUnknownSource)

	out, err = run(t, env, "cursor", "aiquinto")
	require.NoError(t, err)
	require.Equal(t, "source=aiquinto last_agent=- version=0\n", out)

	_, err = services.Engine.AssignLead(context.Background(), service.NewLead{Source: "aiquinto", FullName: "Lead"})
	require.NoError(t, err)
	out, err = run(t, env, "cursor", "aiquinto")
	require.NoError(t, err)
	require.Equal(t, "source=aiquinto last_agent=A version=1\n", out)
}

func TestReassignAndUnassigned(t *testing.T) {
	env, services := newTestEnv(t)
	ctx := context.Background()

	res, err := services.Engine.AssignLead(ctx, service.NewLead{Source: "prestitionline", FullName: "Orphan"})
	require.ErrorIs(t, err, domain.ErrNoEligibleAgents)

	out, err := run(t, env, "unassigned", "--source", "prestitionline")
	require.NoError(t, err)
	require.Contains(t, out, res.LeadID)
	require.Contains(t, out, domain.AssignmentFailureNoEligibleAgents)

	assigned, err := services.Engine.AssignLead(ctx, service.NewLead{Source: "aiquinto", FullName: "Lead"})
	require.NoError(t, err)

	_, err = run(t, env, "reassign", assigned.LeadID, "B")
	require.Error(t, err)

	out, err = run(t, env, "reassign", assigned.LeadID, "B", "--actor", "ops")
	require.NoError(t, err)
	require.Equal(t, "lead "+assigned.LeadID+": A -> B\n", out)
}

func TestToken(t *testing.T) {
	env, _ := newTestEnv(t)

	out, err := run(t, env, "token", "admin-1")
	require.NoError(t, err)
	claims, err := env.Tokens.ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "admin-1", claims.AgentID)

	_, err = run(t, env, "token", "admin-1", "--role", "agent")
	require.Error(t, err)
}
