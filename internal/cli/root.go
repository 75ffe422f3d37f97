// Package cli implements the leadctl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/wire"
)

// Env supplies the commands with their dependencies.
type Env struct {
	// Services opens the domain services; the returned func releases them.
	Services func(ctx context.Context) (*wire.Services, func(), error)
	Tokens   *auth.TokenManager
	// Migrate applies pending schema migrations.
	Migrate func(ctx context.Context) error
}

// NewRootCmd builds the leadctl command tree.
func NewRootCmd(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operate the lead-router assignment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		eligibleCmd(env),
		cursorCmd(env),
		reassignCmd(env),
		unassignedCmd(env),
		tokenCmd(env),
		migrateCmd(env),
	)
	return root
}

func withServices(cmd *cobra.Command, env *Env, fn func(ctx context.Context, s *wire.Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	services, release, err := env.Services(ctx)
	if err != nil {
		return fmt.Errorf("open services: %w", err)
	}
	defer release()
	return fn(ctx, services)
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}
