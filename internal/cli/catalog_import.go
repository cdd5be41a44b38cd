package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/lending"
)

// CatalogFile is the YAML document read by catalog-import:
//
//	books:
//	  - title: Dune
//	    author: Frank Herbert
//	    isbn: "9780441013593"
//	    published_date: 1965-08-01
//	    total_copies: 3
type CatalogFile struct {
	Books []CatalogEntry `yaml:"books" json:"books"`
}

type CatalogEntry struct {
	Title         string `yaml:"title" json:"title"`
	Author        string `yaml:"author" json:"author"`
	ISBN          string `yaml:"isbn" json:"isbn"`
	PublishedDate string `yaml:"published_date" json:"published_date,omitempty"`
	TotalCopies   *int   `yaml:"total_copies" json:"total_copies,omitempty"`
}

// ParseCatalog decodes a catalog YAML document. Unknown keys are rejected so
// typos do not silently drop copy counts.
func ParseCatalog(r io.Reader) (*CatalogFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file CatalogFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &file, nil
}

// toBook validates the entry and converts it. Entries without total_copies
// describe a single copy.
func (e CatalogEntry) toBook() (*entities.Book, error) {
	book := &entities.Book{
		Title:       strings.TrimSpace(e.Title),
		Author:      strings.TrimSpace(e.Author),
		ISBN:        strings.TrimSpace(e.ISBN),
		TotalCopies: 1,
	}
	if book.Title == "" {
		return nil, errors.New("title is required")
	}
	if book.Author == "" {
		return nil, errors.New("author is required")
	}
	if !entities.IsValidISBN(book.ISBN) {
		return nil, fmt.Errorf("invalid isbn %q", e.ISBN)
	}
	if e.TotalCopies != nil {
		if *e.TotalCopies < 0 {
			return nil, errors.New("total_copies must not be negative")
		}
		book.TotalCopies = *e.TotalCopies
	}
	if e.PublishedDate != "" {
		published, err := time.Parse("2006-01-02", e.PublishedDate)
		if err != nil {
			return nil, fmt.Errorf("invalid published_date %q, want YYYY-MM-DD", e.PublishedDate)
		}
		book.PublishedDate = &published
	}
	return book, nil
}

// ImportResult summarises a catalog import.
type ImportResult struct {
	Created int
	Updated int
	Skipped []ImportError
}

// ImportError ties a rejected entry to its position in the file.
type ImportError struct {
	Index int
	ISBN  string
	Err   error
}

func (e ImportError) Error() string {
	return fmt.Sprintf("entry %d (%s): %v", e.Index+1, e.ISBN, e.Err)
}

// CatalogImporter upserts catalog entries by ISBN. Copy counts of existing
// books go through the lending coordinator so open loans are respected.
type CatalogImporter struct {
	catalog     *catalog.Repository
	coordinator *lending.Coordinator
}

func NewCatalogImporter(repo *catalog.Repository, coordinator *lending.Coordinator) *CatalogImporter {
	return &CatalogImporter{catalog: repo, coordinator: coordinator}
}

// Import applies every valid entry. Invalid entries and entries the store
// rejects are skipped and reported; other errors abort the import. With
// dryRun nothing is written and valid entries count as created or updated
// according to whether their ISBN is already known.
func (imp *CatalogImporter) Import(ctx context.Context, file *CatalogFile, dryRun bool) (*ImportResult, error) {
	result := &ImportResult{}

	for i, entry := range file.Books {
		book, err := entry.toBook()
		if err != nil {
			result.Skipped = append(result.Skipped, ImportError{Index: i, ISBN: entry.ISBN, Err: err})
			continue
		}

		if dryRun {
			_, err := imp.catalog.FindByISBN(ctx, book.ISBN)
			switch {
			case errors.Is(err, catalog.ErrBookNotFound):
				result.Created++
			case err != nil:
				return result, err
			default:
				result.Updated++
			}
			continue
		}

		saved, created, err := imp.catalog.UpsertByISBN(ctx, book)
		if err != nil {
			return result, fmt.Errorf("entry %d: %w", i+1, err)
		}
		if created {
			result.Created++
			continue
		}

		if entry.TotalCopies != nil && saved.TotalCopies != book.TotalCopies {
			if _, err := imp.coordinator.SetTotalCopies(ctx, saved.ID, book.TotalCopies); err != nil {
				if errors.Is(err, lending.ErrValidation) {
					result.Skipped = append(result.Skipped, ImportError{Index: i, ISBN: entry.ISBN, Err: err})
					continue
				}
				return result, fmt.Errorf("entry %d: %w", i+1, err)
			}
		}
		result.Updated++
	}

	return result, nil
}

// CatalogImportCommand loads books from a YAML file into the catalog.
type CatalogImportCommand struct {
	FilePath     string
	DatabasePath string
	DryRun       bool
	Verbose      bool
}

func NewCatalogImportCommand() *CatalogImportCommand {
	return &CatalogImportCommand{}
}

func (cmd *CatalogImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("catalog-import", flag.ExitOnError)

	fs.StringVar(&cmd.FilePath, "file", "", "Path to the catalog YAML file (required)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "SQLite database path (defaults to DATABASE_PATH)")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Show what would be imported without making changes")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "List every skipped entry")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s catalog-import -file <path> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create or update books from a YAML file, matching existing books by ISBN.\n")
		fmt.Fprintf(os.Stderr, "total_copies of an existing book is changed only if no open loans prevent it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s catalog-import -file books.yaml -dry-run\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.FilePath == "" {
		return fmt.Errorf("required flag -file not provided")
	}
	return nil
}

func (cmd *CatalogImportCommand) Run() error {
	fmt.Println("Catalog Import")
	fmt.Println("==============")
	if cmd.DryRun {
		fmt.Println("DRY RUN MODE - No changes will be made")
		fmt.Println()
	}

	f, err := os.Open(cmd.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	file, err := ParseCatalog(f)
	if err != nil {
		return err
	}
	fmt.Printf("File: %s (%d entries)\n", cmd.FilePath, len(file.Books))
	if len(file.Books) == 0 {
		return nil
	}

	cfg := loadConfig(cmd.DatabasePath)
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cmd.DryRun {
		if _, err := audit.NewArchiver(cfg.Audit.ArchiveDir).SaveJSON("catalog-import", file); err != nil {
			fmt.Printf("Warning: failed to archive import: %v\n", err)
		}
	}

	importer := NewCatalogImporter(catalog.NewRepository(db.DB), lending.NewCoordinator(db.DB, cfg.Lending))
	result, err := importer.Import(context.Background(), file, cmd.DryRun)
	if result != nil {
		fmt.Printf("\nCreated: %d\nUpdated: %d\nSkipped: %d\n", result.Created, result.Updated, len(result.Skipped))
		if cmd.Verbose || len(result.Skipped) <= 10 {
			for _, skipped := range result.Skipped {
				fmt.Printf("  - %v\n", skipped)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("import aborted: %w", err)
	}
	return nil
}
