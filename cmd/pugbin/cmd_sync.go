package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-while/go-pugbin/internal/config"
	"github.com/go-while/go-pugbin/internal/nntp"
	"github.com/go-while/go-pugbin/internal/processor"
	"github.com/go-while/go-pugbin/internal/web"
)

var (
	syncAll        bool
	backfillDate   string
	backfillDays   int
	updateInterval time.Duration
)

var updateCmd = &cobra.Command{
	Use:   "update [GROUP...]",
	Short: "Scan groups forward to the newest article on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, args, func(proc *processor.Processor) processor.GroupOp {
			return proc.Update
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill [GROUP...]",
	Short: "Scan groups backward to an older date",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseBackfillTarget(backfillDate, backfillDays)
		if err != nil {
			return err
		}
		return runSync(cmd, args, func(proc *processor.Processor) processor.GroupOp {
			return func(ctx context.Context, group string) (*processor.SyncResult, error) {
				return proc.Backfill(ctx, group, target)
			}
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API, optionally updating all active groups periodically",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newScanner(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if updateInterval > 0 {
			go updateLoop(ctx, s, cfg, updateInterval)
		}
		server := web.NewServer(s.db, s.assembler.Stats(), s.pool, &cfg.Web)
		return server.Start(ctx)
	},
}

func init() {
	for _, c := range []*cobra.Command{updateCmd, backfillCmd} {
		c.Flags().BoolVar(&syncAll, "all", false, "Process all active groups")
	}
	backfillCmd.Flags().StringVar(&backfillDate, "date", "", "Backfill to this date (YYYY-MM-DD)")
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "Backfill this many days (default: scan.backfill_days)")
	backfillCmd.MarkFlagsMutuallyExclusive("date", "days")
	serveCmd.Flags().DurationVar(&updateInterval, "update-interval", 0, "Run update on all active groups at this interval (0 disables)")
}

func parseBackfillTarget(date string, days int) (processor.BackfillTarget, error) {
	if days < 0 {
		return processor.BackfillTarget{}, fmt.Errorf("--days must not be negative")
	}
	if date == "" {
		return processor.BackfillTarget{Days: days}, nil
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return processor.BackfillTarget{}, fmt.Errorf("--date %q: want YYYY-MM-DD", date)
	}
	return processor.BackfillTarget{Date: &t}, nil
}

// selectGroups returns the groups named on the command line, or all
// active groups with --all. Arguments holding a wildmat such as
// "alt.binaries.*,!alt.binaries.pictures.*" select from the active groups.
func selectGroups(args []string, all bool, active func() ([]string, error)) ([]string, error) {
	switch {
	case all && len(args) > 0:
		return nil, errors.New("pass group names or --all, not both")
	case all:
		names, err := active()
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, errors.New("no active groups")
		}
		return names, nil
	case len(args) == 0:
		return nil, errors.New("no group given, pass group names or --all")
	}

	var names, patterns []string
	for _, arg := range args {
		if nntp.IsWildmat(arg) {
			patterns = append(patterns, nntp.SplitWildmat(arg)...)
		} else if !slices.Contains(names, arg) {
			names = append(names, arg)
		}
	}
	if len(patterns) == 0 {
		return names, nil
	}
	activeNames, err := active()
	if err != nil {
		return nil, err
	}
	for _, name := range activeNames {
		if nntp.MatchWildmat(name, patterns) && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no active group matches %v", patterns)
	}
	return names, nil
}

func runSync(cmd *cobra.Command, args []string, bind func(*processor.Processor) processor.GroupOp) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newScanner(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := selectGroups(args, syncAll, func() ([]string, error) {
		return activeGroupNames(ctx, s)
	})
	if err != nil {
		return err
	}
	outcomes := s.proc.RunGroups(ctx, names, cfg.Scan.Parallel, bind(s.proc))
	printOutcomes(outcomes)
	return processor.FailedGroups(outcomes)
}

func activeGroupNames(ctx context.Context, s *scanner) ([]string, error) {
	groups, err := s.db.ListGroups(ctx, true)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names, nil
}

func updateLoop(ctx context.Context, s *scanner, cfg *config.MainConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		names, err := activeGroupNames(ctx, s)
		if err != nil {
			log.Printf("[PUGBIN] list active groups: %v", err)
		} else if len(names) > 0 {
			outcomes := s.proc.RunGroups(ctx, names, cfg.Scan.Parallel, s.proc.Update)
			if err := processor.FailedGroups(outcomes); err != nil {
				log.Printf("[PUGBIN] update run finished with errors: %v", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printOutcomes(outcomes []processor.GroupOutcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Printf("%-48s FAILED %v\n", o.Group, o.Err)
			continue
		}
		r := o.Result
		fmt.Printf("%-48s %-8s %-17s batches=%d articles=%d missed=%d parts=%d segments=%d dupes=%d blacklisted=%d first=%s last=%s took=%v\n",
			o.Group, r.Direction, r.State, r.Batches, r.Articles, r.Missed, r.Parts, r.Segments, r.Duplicates, r.Blacklisted,
			watermark(r.First), watermark(r.Last), r.Took.Truncate(time.Millisecond))
	}
}
