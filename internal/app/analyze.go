package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"callwatch/internal/detector"
	"callwatch/internal/prompt"
)

// Analyze runs the pipeline over text and prints what it found. Nothing is
// relayed or persisted.
func (a *App) Analyze(ctx context.Context, w io.Writer, opts AnalyzeOptions) error {
	if strings.TrimSpace(opts.Text) == "" {
		return errors.New("text to analyze is required")
	}

	svc, err := a.newService(nil, nil)
	if err != nil {
		return err
	}

	analysis, err := svc.Analyze(ctx, opts.Text, opts.DryRun)
	if err != nil {
		return err
	}

	if analysis.Address != nil {
		fmt.Fprintf(w, "address: %s\n", analysis.Address)
	} else {
		fmt.Fprintln(w, "address: none detected")
	}

	if analysis.Resolved() {
		writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, f := range prompt.Fields(analysis.Record) {
			fmt.Fprintf(writer, "%s\t%s\n", f.Label, sanitizeInline(f.Value))
		}
		writer.Flush()
	} else {
		fmt.Fprintf(w, "market data: unavailable (%v)\n", analysis.ResolveErr)
	}

	if opts.DryRun {
		for _, m := range analysis.Prompt {
			fmt.Fprintf(w, "\n--- %s ---\n%s\n", m.Role, m.Content)
		}
		return nil
	}

	fmt.Fprintf(w, "\n%s\n", analysis.Reply)
	return nil
}

// Detect reports the contract address detected in text and the chain slug
// it would be looked up under.
func (a *App) Detect(w io.Writer, text string) error {
	addr, ok := detector.Detect(text)
	if !ok {
		fmt.Fprintln(w, "no contract address detected")
		return nil
	}

	slugs, err := a.slugTable()
	if err != nil {
		return err
	}
	slug, ok := slugs.Slug(addr.Platform)
	if !ok {
		slug = "n/a"
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Platform\t%s\n", addr.Platform)
	fmt.Fprintf(writer, "Address\t%s\n", addr.Display())
	fmt.Fprintf(writer, "Chain slug\t%s\n", slug)
	return writer.Flush()
}
