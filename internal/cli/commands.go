package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/wire"
)

func eligibleCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "eligible <source>",
		Short: "List agents currently in rotation for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, env, func(ctx context.Context, s *wire.Services) error {
				source, err := s.Sources.Parse(args[0])
				if err != nil {
					return err
				}
				profiles, err := s.Directory.EligibleAgentProfiles(ctx, source)
				if err != nil {
					return err
				}
				if len(profiles) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no eligible agents for %s\n", source)
					return nil
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "AGENT\tNAME\tEMAIL")
				for _, p := range profiles {
					fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Email)
				}
				return w.Flush()
			})
		},
	}
}

func cursorCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "cursor <source>",
		Short: "Show the rotation cursor of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, env, func(ctx context.Context, s *wire.Services) error {
				source, err := s.Sources.Parse(args[0])
				if err != nil {
					return err
				}
				cursor, err := s.Rotation.Cursor(ctx, source)
				if err != nil {
					return err
				}
				last := cursor.AgentID
				if last == "" {
					last = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "source=%s last_agent=%s version=%d\n", cursor.Source, last, cursor.Version)
				return nil
			})
		},
	}
}

func reassignCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reassign <lead-id> <agent-id>",
		Short: "Assign a lead to an agent by hand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			if actor == "" {
				return fmt.Errorf("--actor is required")
			}
			return withServices(cmd, env, func(ctx context.Context, s *wire.Services) error {
				record, err := s.Override.Reassign(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				previous := "-"
				if record.PreviousAgentID != nil {
					previous = *record.PreviousAgentID
				}
				fmt.Fprintf(cmd.OutOrStdout(), "lead %s: %s -> %s\n", record.LeadID, previous, record.AgentID)
				return nil
			})
		},
	}
	cmd.Flags().String("actor", "", "id of the operator performing the change")
	return cmd
}

func unassignedCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unassigned",
		Short: "List leads stored without an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rawSource, _ := cmd.Flags().GetString("source")
			limit, _ := cmd.Flags().GetInt("limit")
			return withServices(cmd, env, func(ctx context.Context, s *wire.Services) error {
				filter := repository.LeadFilter{Limit: limit}
				if rawSource != "" {
					source, err := s.Sources.Parse(rawSource)
					if err != nil {
						return err
					}
					filter.Source = &source
				}
				leads, err := s.Leads.ListUnassigned(ctx, filter)
				if err != nil {
					return err
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "LEAD\tSOURCE\tNAME\tCREATED\tREASON")
				for _, l := range leads {
					reason := "-"
					if l.AssignmentFailure != nil {
						reason = *l.AssignmentFailure
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.ID, l.Source, l.FullName, l.CreatedAt.Format(time.RFC3339), reason)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("source", "", "only leads from this source")
	cmd.Flags().Int("limit", 50, "maximum number of leads")
	return cmd
}

func tokenCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <agent-id>",
		Short: "Mint an admin API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			agentRole := domain.AgentRole(role)
			if !agentRole.CanAdminister() {
				return fmt.Errorf("role must be admin or campaign_manager, got %q", role)
			}
			token, expiresAt, err := env.Tokens.GenerateToken(args[0], agentRole)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("role", string(domain.AgentRoleAdmin), "role recorded in the token")
	return cmd
}

func migrateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.Migrate == nil {
				return fmt.Errorf("migrations not available")
			}
			return env.Migrate(cmd.Context())
		},
	}
}
