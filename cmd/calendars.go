package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/calmux/internal/server"
)

func newCalendarsCmd() *cobra.Command {
	var (
		configPath string
		accounts   string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "List the calendars of the configured accounts",
		Long: `List every calendar visible to the configured accounts. A calendar shared
with several accounts is listed once together with the access role of each.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging, os.Stderr, false)
			if err != nil {
				return err
			}
			sc, err := newServerContext(cmd.Context(), cfg, logger, contextDeps{})
			if err != nil {
				return err
			}
			defer func() {
				_ = sc.Shutdown()
			}()

			selected := parseCommaSeparatedList(accounts)
			if selected == nil {
				selected = sc.Accounts()
			}
			return runCalendars(cmd.Context(), sc, selected, cmd.OutOrStdout(), asJSON)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the config file")
	cmd.Flags().StringVar(&accounts, "accounts", "", "Comma-separated accounts to list (default: all configured accounts)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

func runCalendars(ctx context.Context, sc *server.ServerContext, accounts []string, w io.Writer, asJSON bool) error {
	resp, err := sc.Operations().ListCalendars(ctx, accounts)
	if err != nil {
		return fmt.Errorf("failed to list calendars: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tTIME ZONE\tACCESS")
	for _, c := range resp.Calendars {
		access := make([]string, 0, len(c.Accesses))
		for _, a := range c.Accesses {
			s := a.AccountID + ":" + string(a.AccessRole)
			if a.Primary {
				s += " (primary)"
			}
			access = append(access, s)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Summary, c.ID, c.TimeZone, strings.Join(access, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, warning := range resp.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}
