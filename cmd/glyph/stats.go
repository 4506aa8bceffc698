package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glyph-ai/glyph/pkg/config"
	"github.com/glyph-ai/glyph/pkg/tracker"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		recent     bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show extraction run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLocal(configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := cmd.Context()

			if recent {
				runs, err := tr.Recent(ctx, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Println("No runs found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tFILE\tMODEL\tPAGES\tSIZE\tDURATION\tCACHED")
				for _, r := range runs {
					cached := ""
					if r.CacheHit {
						cached = "yes"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%dms\t%s\n",
						r.CreatedAt.Format("2006-01-02T15:04:05"), r.FileName, r.Model, r.Pages, r.FileSize, r.DurationMs, cached)
				}
				return w.Flush()
			}

			summaries, err := tr.Summary(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tFILES\tPAGES\tBYTES\tAVG DURATION\tCACHE HITS")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%dms\t%d\n",
					s.Model, s.Files, s.TotalPages, s.TotalBytes, s.AvgDurationMs, s.CacheHits)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: search config.toml)")
	cmd.Flags().BoolVar(&recent, "recent", false, "list individual runs instead of the per-model summary")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list with --recent")
	return cmd
}
