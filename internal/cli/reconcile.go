package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/librarian/internal/audit"
	auditrepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/settings"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/settingsstore"
	"github.com/mrlokans/librarian/internal/tasks"
)

// ReconcileCommand compares every book's available counter with its open
// transactions and optionally repairs drift.
type ReconcileCommand struct {
	Fix          bool
	DatabasePath string
}

func NewReconcileCommand() *ReconcileCommand {
	return &ReconcileCommand{}
}

func (cmd *ReconcileCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)

	fs.BoolVar(&cmd.Fix, "fix", false, "Repair drifted counters instead of only reporting them")
	fs.StringVar(&cmd.DatabasePath, "db", "", "SQLite database path (defaults to DATABASE_PATH)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s reconcile [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Report books whose copies_available differs from total copies minus open loans.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *ReconcileCommand) Run() error {
	cfg := loadConfig(cmd.DatabasePath)
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	auditService := audit.NewService(auditrepo.NewRepository(db.DB))
	defer auditService.Wait()

	reconciler := tasks.NewReconciler(
		lending.NewCoordinator(db.DB, cfg.Lending),
		settingsstore.New(settings.NewRepository(db.DB), cfg.Reconcile),
		audit.NewArchiver(cfg.Audit.ArchiveDir),
		auditService,
	)

	report, err := reconciler.Run(context.Background(), audit.Actor{UserAgent: "librarian-cli"}, cmd.Fix)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	printDrift(report)
	return nil
}

func printDrift(report *tasks.ReconcileReport) {
	if len(report.Drift) == 0 {
		fmt.Println("All counters match the ledger")
		return
	}

	fmt.Printf("%d book(s) drifted:\n", len(report.Drift))
	for _, d := range report.Drift {
		state := "reported"
		if d.Fixed {
			state = "fixed"
		}
		fmt.Printf("  #%d %q: available %d, expected %d (%d total, %d out) [%s]\n",
			d.BookID, d.Title, d.CopiesAvailable, d.Expected, d.TotalCopies, d.OpenTransactions, state)
	}
	if report.Archive != "" {
		fmt.Printf("Report archived as %s\n", report.Archive)
	}
	if !report.Fix {
		fmt.Println("Run with -fix to repair")
	}
}
