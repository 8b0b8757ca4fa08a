package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-research/newsaudit/internal/model"
	"github.com/meridian-research/newsaudit/internal/store"
)

var (
	articlesStatus string
	articlesLimit  int
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List articles and their lifecycle state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f := store.Filter{Limit: articlesLimit}
		if articlesStatus != "" {
			status := model.Status(articlesStatus)
			if !status.Valid() {
				return eris.Errorf("unknown status %q", articlesStatus)
			}
			f.Status = status
		}

		articles, err := st.ListArticles(ctx, f)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tRETRIES\tSCORE\tOVERALL\tTITLE")
		for _, a := range articles {
			score := "-"
			if a.AuditRecord != nil {
				score = fmt.Sprintf("%d", a.AuditRecord.ConfidenceScore)
			}
			overall := "-"
			if a.OverallConfidence != nil {
				overall = fmt.Sprintf("%.1f", *a.OverallConfidence)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				a.ID, a.Status, a.RetryCount, score, overall, truncate(a.Title, 60))
		}
		return w.Flush()
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	articlesCmd.Flags().StringVar(&articlesStatus, "status", "", "filter by lifecycle status")
	articlesCmd.Flags().IntVar(&articlesLimit, "limit", 50, "maximum rows")
	rootCmd.AddCommand(articlesCmd)
}
