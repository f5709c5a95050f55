package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/prload/internal/mocktarget"
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a stand-in for the pull request creation endpoint",
	Long: `Serve POST /pullRequest/create locally so a run can be tried without the
reviewer service. The mock answers 201 Created with the pull request, or the
status given by --status, and exposes its counters on GET /stats. With
--known-authors, any other author_id is answered with 404 NOT_FOUND.

Examples:
  prload mock --addr :8080
  prload mock --status 500
  prload mock --latency 20ms --dedupe
  prload mock --known-authors u1,u2`,
	RunE: runMock,
}

func runMock(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	status, _ := cmd.Flags().GetInt("status")
	latency, _ := cmd.Flags().GetDuration("latency")
	dedupe, _ := cmd.Flags().GetBool("dedupe")
	knownAuthors, _ := cmd.Flags().GetStringSlice("known-authors")

	if http.StatusText(status) == "" {
		return fmt.Errorf("invalid --status %d", status)
	}
	if latency < 0 {
		return fmt.Errorf("invalid --latency %s: must be >= 0", latency)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mock := mocktarget.New(mocktarget.Config{
		Status:       status,
		Latency:      latency,
		Dedupe:       dedupe,
		KnownAuthors: knownAuthors,
	}, slog.Default())

	if err := mock.ListenAndServe(ctx, addr); err != nil {
		return err
	}

	stats := mock.Stats()
	slog.Info("mock target summary",
		"received", stats.Received,
		"created", stats.Created,
		"duplicates", stats.Duplicates,
		"not_found", stats.NotFound,
		"rejected", stats.Rejected,
	)
	return nil
}

func init() {
	mockCmd.Flags().String("addr", ":8080", "Listen address")
	mockCmd.Flags().Int("status", http.StatusCreated, "Status returned for valid requests")
	mockCmd.Flags().Duration("latency", 0, "Delay added to every create response")
	mockCmd.Flags().Bool("dedupe", false, "Answer 409 PR_EXISTS for repeated pull request ids")
	mockCmd.Flags().StringSlice("known-authors", nil, "Author ids the mock knows; others get 404 NOT_FOUND (default: any author)")
}
