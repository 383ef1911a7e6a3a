// Package report implements the CLI run report command.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/sitewatch/cmd/common"
	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/storage"
)

// Command returns the report command.
func Command(opts *common.Options) *cobra.Command {
	var brokenOnly bool

	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Print a run report",
		Long:  "Prints the pages, broken links, and change summary of a finished run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], brokenOnly)
		},
	}

	cmd.Flags().BoolVar(&brokenOnly, "broken-only", false, "only print the broken links table")

	return cmd
}

func run(ctx context.Context, opts *common.Options, runID string, brokenOnly bool) error {
	cfg, log, err := opts.Bootstrap()
	if err != nil {
		return err
	}

	store, err := common.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	runRecord, err := store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			return fmt.Errorf("run %s not found", runID)
		}
		return err
	}

	broken, err := store.GetBrokenLinkDetails(ctx, runID)
	if err != nil {
		return err
	}

	if !brokenOnly {
		printSummary(runRecord)

		pages, pagesErr := store.GetPages(ctx, runID)
		if pagesErr != nil {
			return pagesErr
		}
		printPages(pages)
	}

	printBrokenLinks(broken)

	if !brokenOnly {
		report, reportErr := store.GetChangeReport(ctx, runID)
		if reportErr != nil && !errors.Is(reportErr, storage.ErrChangeReportNotFound) {
			return reportErr
		}
		if report != nil {
			printChanges(report)
		}
	}

	return nil
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func printSummary(run *domain.Run) {
	t := newTable(fmt.Sprintf("Run %s", run.ID))
	t.AppendRows([]table.Row{
		{"Start URL", run.StartURL},
		{"Status", run.Status},
		{"Created", run.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Pages analyzed", run.PagesAnalyzed},
		{"Links found", run.LinksFound},
		{"Broken links", run.BrokenLinks},
		{"Blank pages", run.BlankPages},
		{"Technical score", run.TechnicalScore},
	})
	if run.ErrorMessage != nil {
		t.AppendRow(table.Row{"Error", *run.ErrorMessage})
	}
	t.Render()
}

func printPages(pages []domain.PageRecord) {
	t := newTable("Pages")
	t.AppendHeader(table.Row{"URL", "Type", "Title", "Words", "Status", "Depth"})
	for i := range pages {
		page := &pages[i]
		t.AppendRow(table.Row{
			page.URL, page.PageType, page.Title, page.WordCount, page.StatusCode, page.Depth(),
		})
	}
	t.Render()
}

func printBrokenLinks(broken []domain.BrokenLinkDetail) {
	t := newTable("Broken links")
	t.AppendHeader(table.Row{"URL", "Status", "Code", "Found on"})

	if len(broken) == 0 {
		t.AppendRow(table.Row{"none", "", "", ""})
		t.Render()
		return
	}

	for i := range broken {
		detail := &broken[i]
		status := string(detail.Validation.Status)
		if detail.Validation.ErrorMessage != nil {
			status = fmt.Sprintf("%s (%s)", status, *detail.Validation.ErrorMessage)
		}
		t.AppendRow(table.Row{
			detail.Validation.URL, status, detail.Validation.StatusCode, detail.SourceURL,
		})
	}
	t.Render()
}

func printChanges(report *domain.ChangeReport) {
	t := newTable("Changes since previous run")
	t.AppendRows([]table.Row{
		{"Previous run", report.PreviousRunID},
		{"New pages", report.Summary.NewCount},
		{"Removed pages", report.Summary.RemovedCount},
		{"Modified pages", report.Summary.ModifiedCount},
		{"Path changes", report.Summary.PathChangeCount},
		{"Impact", report.Summary.Impact},
	})
	t.Render()
}
