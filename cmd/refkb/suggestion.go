package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"refkb/internal/suggestion/models"
	dErrors "refkb/pkg/domain-errors"
	"refkb/pkg/requestcontext"
)

var (
	actorID    string
	notifyFlag bool
	statusFlag string
)

var applyCmd = &cobra.Command{
	Use:   "apply [suggestion-id]",
	Short: "Apply an approved suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := requestcontext.WithTime(cmd.Context(), time.Now().UTC())
		a, err := newApp(ctx, cfg, log, appOptions{notifiers: notifyFlag})
		if err != nil {
			return err
		}
		defer a.Close()

		changes, err := a.service.Apply(ctx, id, actorID)
		if err != nil {
			return describe(err)
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{"success": true, "changes": changes})
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert [suggestion-id]",
	Short: "Revert an applied suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := requestcontext.WithTime(cmd.Context(), time.Now().UTC())
		a, err := newApp(ctx, cfg, log, appOptions{notifiers: notifyFlag})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.service.Revert(ctx, id, actorID); err != nil {
			return describe(err)
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{"success": true})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [suggestion-id]",
	Short: "Print the audit entries recorded for a suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, log, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.service.History(cmd.Context(), id)
		if err != nil {
			return describe(err)
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List suggestions by review status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var statuses []models.Status
		for _, raw := range strings.Split(statusFlag, ",") {
			st, ok := models.ParseStatus(raw)
			if !ok {
				return fmt.Errorf("unknown status %q", raw)
			}
			statuses = append(statuses, st)
		}
		a, err := newApp(cmd.Context(), cfg, log, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		suggestions, err := a.service.List(cmd.Context(), statuses...)
		if err != nil {
			return describe(err)
		}
		if suggestions == nil {
			suggestions = []*models.Suggestion{}
		}
		return writeJSON(cmd.OutOrStdout(), suggestions)
	},
}

var showCmd = &cobra.Command{
	Use:   "show [suggestion-id]",
	Short: "Print a single suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, log, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		sug, err := a.service.Get(cmd.Context(), id)
		if err != nil {
			return describe(err)
		}
		return writeJSON(cmd.OutOrStdout(), sug)
	},
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid suggestion id %q", raw)
	}
	return id, nil
}

// describe renders a domain error as "<code>: <message>" for the terminal.
func describe(err error) error {
	return fmt.Errorf("%s: %s", dErrors.CodeOf(err), dErrors.Message(err))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, cmd := range []*cobra.Command{applyCmd, revertCmd} {
		cmd.Flags().StringVar(&actorID, "actor", "", "Identity recorded as the performer (required)")
		_ = cmd.MarkFlagRequired("actor")
		cmd.Flags().BoolVar(&notifyFlag, "notify", true, "Publish change notifications after commit")
		rootCmd.AddCommand(cmd)
	}
	listCmd.Flags().StringVar(&statusFlag, "status", string(models.StatusApproved), "Comma-separated statuses to include")
	rootCmd.AddCommand(historyCmd, listCmd, showCmd)
}
