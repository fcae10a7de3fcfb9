package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/report"
)

type scanOptions struct {
	file    string
	raw     bool
	json    bool
	noColor bool
}

// newScanCmd creates and configures the 'scan' subcommand.
func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [login...]",
		Short: "Look up invite links for the given streamers",
		Long: `Looks up Discord invite links for each login. Fresh cache entries are
answered directly; every other login is scraped through the session pool and
written back to the cache once the whole batch finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read logins from a file, one per line")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print every raw candidate link")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored invite codes")
	cmd.MarkFlagsMutuallyExclusive("raw", "json")
	return cmd
}

func runScan(cmd *cobra.Command, args []string, opts *scanOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	ids := args
	if opts.file != "" {
		fromFile, err := readLogins(opts.file)
		if err != nil {
			return err
		}
		ids = append(ids, fromFile...)
	}
	ids = distinct(ids)
	if len(ids) == 0 {
		return errors.New("no logins given; pass them as arguments or with --file")
	}

	batch, scanErr := appInstance.GetScanner().ScanBatch(cmd.Context(), ids)
	logger.Debug("scan finished",
		zap.String("batch_id", batch.ID),
		zap.Int("hits", batch.Hits),
		zap.Int("scraped", len(batch.Results)),
	)

	rows := report.Rows(ids, batch.Links)
	out := cmd.OutOrStdout()
	switch {
	case opts.json:
		err = report.JSON(out, rows)
	case opts.raw:
		err = report.Raw(out, rows)
	default:
		report.Table(out, rows, !opts.noColor)
	}
	if err != nil {
		return err
	}
	return scanErr
}

// readLogins returns the non-blank lines of path, skipping # comments.
func readLogins(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open logins file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read logins file: %w", err)
	}
	return ids, nil
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
