package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"callwatch/internal/storage"
)

// History prints recent analyses.
func (a *App) History(ctx context.Context, w io.Writer, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentAnalyses(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no analyses found")
		return nil
	}
	total, err := store.CountAnalyses(ctx)
	if err != nil {
		return err
	}

	return writeHistory(w, records, total)
}

func writeHistory(w io.Writer, records []storage.AnalysisRecord, total int64) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMessage\tPlatform\tAddress\tToken\tStatus\tError")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.MessageID,
			deref(rec.Platform),
			deref(rec.Address),
			deref(rec.TokenName),
			rec.Status,
			shorten(sanitizeInline(deref(rec.Error)), 80),
		)
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "showing %d of %d analyses\n", len(records), total)
	return nil
}

// Prune deletes analyses older than the given age.
func (a *App) Prune(ctx context.Context, w io.Writer, opts PruneOptions) error {
	olderThan := opts.OlderThan
	if olderThan <= 0 {
		olderThan = a.Config.Retention.MaxAge
	}
	if olderThan <= 0 {
		return errors.New("--older-than must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot prune history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	before := time.Now().UTC().Add(-olderThan)
	deleted, err := store.DeleteAnalysesBefore(ctx, before)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "deleted %d analyses created before %s\n", deleted, before.Format(time.RFC3339))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func shorten(v string, max int) string {
	if utf8.RuneCountInString(v) <= max {
		return v
	}
	runes := []rune(v)
	return string(runes[:max-3]) + "..."
}
