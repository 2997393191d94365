package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/calmux/internal/operations"
	"github.com/teemow/calmux/internal/server"
)

func newCommitCmd() *cobra.Command {
	var (
		configPath      string
		file            string
		account         string
		calendarID      string
		allowDuplicates bool
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Write proposed events to a calendar",
		Long: `Read proposed events from a JSON file and create them in a calendar.

The file holds either an array of proposals or an object with a
"proposedEvents" array. Each proposal has an id, a taskId, a title and start
and end times. Proposals committed before are skipped, so the command can be
repeated safely. Use "-" to read from standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readProposals(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			req.Account = account
			req.Calendar = calendarID
			req.AllowDuplicates = allowDuplicates

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging, os.Stderr, false)
			if err != nil {
				return err
			}
			sc, err := newServerContext(cmd.Context(), cfg, logger, contextDeps{notifier: newNotifier(cfg, logger)})
			if err != nil {
				return err
			}
			defer func() {
				_ = sc.Shutdown()
			}()

			return runCommit(cmd.Context(), sc, req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the config file")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the proposed events, or - for stdin")
	cmd.Flags().StringVar(&account, "account", "", "Account to write to (default: the default account)")
	cmd.Flags().StringVar(&calendarID, "calendar", "", "Calendar ID or name (default: primary)")
	cmd.Flags().BoolVar(&allowDuplicates, "allow-duplicates", false, "Create events even when a likely duplicate exists")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// readProposals decodes the proposals in file, which may be "-" for stdin.
func readProposals(stdin io.Reader, file string) (operations.CommitRequest, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return operations.CommitRequest{}, fmt.Errorf("failed to read proposals: %w", err)
	}

	var req operations.CommitRequest
	if err := json.Unmarshal(data, &req.ProposedEvents); err == nil {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return operations.CommitRequest{}, fmt.Errorf("failed to parse proposals: %w", err)
	}
	return req, nil
}

func runCommit(ctx context.Context, sc *server.ServerContext, req operations.CommitRequest, w io.Writer) error {
	resp, err := sc.Operations().CommitProposed(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if len(resp.CreatedEvents) == 0 && len(resp.Errors) > 0 {
		return fmt.Errorf("no proposal was committed")
	}
	return nil
}
