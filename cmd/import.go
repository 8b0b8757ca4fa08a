package main

import (
	"bufio"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/model"
)

var importFilePath string

// importRow is one JSONL ingestion record.
type importRow struct {
	Link              string  `json:"link"`
	Title             string  `json:"title"`
	Source            string  `json:"source"`
	SourceCredibility float64 `json:"source_credibility"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import article links from a JSONL file",
	Long: `Reads one JSON object per line ({"link", "title", "source",
"source_credibility"}) and inserts each as a pending_extraction article.
Links already present are skipped, so re-running an import is safe.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(importFilePath)
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		defer f.Close()

		var created, skipped, malformed int
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var row importRow
			if err := json.Unmarshal(line, &row); err != nil || row.Link == "" {
				malformed++
				continue
			}
			if row.SourceCredibility <= 0 || row.SourceCredibility > 1 {
				row.SourceCredibility = 0.5
			}

			inserted, err := st.UpsertArticle(ctx, &model.Article{
				ID:                uuid.NewString(),
				Link:              row.Link,
				Title:             row.Title,
				Source:            row.Source,
				SourceCredibility: row.SourceCredibility,
				Status:            model.StatusPendingExtraction,
			})
			if err != nil {
				return eris.Wrapf(err, "import article %s", row.Link)
			}
			if inserted {
				created++
			} else {
				skipped++
			}
		}
		if err := scanner.Err(); err != nil {
			return eris.Wrap(err, "read import file")
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.Int("skipped", skipped),
			zap.Int("malformed", malformed),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to JSONL file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
