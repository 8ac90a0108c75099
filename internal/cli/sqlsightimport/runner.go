// Package sqlsightimport is the one-shot dataset importer. It reads an Excel
// or CSV file (or generates demo licences), cleans it, loads it into a
// warehouse table and can publish a parquet snapshot for the embedded
// warehouse.
package sqlsightimport

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqlsight/sqlsight/internal/demo"
	"github.com/sqlsight/sqlsight/internal/importer"
	"github.com/sqlsight/sqlsight/internal/storage"
	"github.com/sqlsight/sqlsight/internal/warehouse/sqldb"
)

// Options carries the connections the importer needs. OpenDB and OpenStore
// are called only when a command needs them.
type Options struct {
	OpenDB    func(ctx context.Context) (*sql.DB, sqldb.Dialect, error)
	OpenStore func(ctx context.Context) (storage.ObjectStore, error)
	Logger    *slog.Logger
	Now       func() time.Time
	Stdout    io.Writer
	Stderr    io.Writer
}

type flags struct {
	file      string
	objectKey string
	sheet     string
	table     string
	snapshot  bool
	skipLoad  bool
	batchSize int
	demoRows  int
	demoSeed  int64
	keepSnaps int
}

type report struct {
	Table        string            `json:"table"`
	Rows         int               `json:"rows"`
	Columns      []importer.Column `json:"columns"`
	Load         *importer.Summary `json:"load,omitempty"`
	SnapshotKeys []string          `json:"snapshot_keys,omitempty"`
	PrunedKeys   []string          `json:"pruned_keys,omitempty"`
}

// Run executes the importer and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(opts.Stderr, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var f flags
	cmd := &cobra.Command{
		Use:           "sqlsight-import",
		Short:         "Load an Excel or CSV dataset into the warehouse",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, opts)
		},
	}
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)
	cmd.Flags().StringVar(&f.file, "file", "", "local .xlsx or .csv file")
	cmd.Flags().StringVar(&f.objectKey, "object-key", "", "read the source file from the object store instead")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Excel sheet name (default: first sheet)")
	cmd.Flags().StringVar(&f.table, "table", "commercial", "target table name")
	cmd.Flags().BoolVar(&f.snapshot, "snapshot", false, "publish a parquet snapshot to the object store")
	cmd.Flags().BoolVar(&f.skipLoad, "skip-load", false, "do not write to the warehouse database")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", importer.DefaultBatchSize, "rows per INSERT statement")
	cmd.Flags().IntVar(&f.demoRows, "demo-rows", 0, "generate this many synthetic licence rows instead of reading a file")
	cmd.Flags().Int64Var(&f.demoSeed, "demo-seed", 1, "random seed for --demo-rows")
	cmd.Flags().IntVar(&f.keepSnaps, "keep-snapshots", 0, "delete all but this many dated snapshots after publishing (0 keeps all)")
	cmd.MarkFlagsMutuallyExclusive("file", "object-key", "demo-rows")
	cmd.MarkFlagsOneRequired("file", "object-key", "demo-rows")

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if !isRunError(err) {
		_, _ = fmt.Fprintf(opts.Stderr, "%v\n\n%s", err, cmd.UsageString())
		return 2
	}
	_, _ = fmt.Fprintf(opts.Stderr, "import failed: %v\n", err)
	return 1
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

type runError struct{ err error }

func (e runError) Error() string { return e.err.Error() }
func (e runError) Unwrap() error { return e.err }

func isRunError(err error) bool {
	var r runError
	return errors.As(err, &r)
}

func run(ctx context.Context, f flags, opts Options) error {
	table := strings.TrimSpace(f.table)
	if table == "" {
		return usageError{"--table must not be empty"}
	}
	if f.skipLoad && !f.snapshot {
		return usageError{"--skip-load requires --snapshot"}
	}
	if f.demoRows < 0 {
		return usageError{"--demo-rows must be positive"}
	}
	if f.keepSnaps < 0 || (f.keepSnaps > 0 && !f.snapshot) {
		return usageError{"--keep-snapshots must be positive and requires --snapshot"}
	}

	var store storage.ObjectStore
	if f.objectKey != "" || f.snapshot {
		if opts.OpenStore == nil {
			return runError{errors.New("object store is not configured")}
		}
		s, err := opts.OpenStore(ctx)
		if err != nil {
			return runError{fmt.Errorf("open object store: %w", err)}
		}
		store = s
	}

	frame, err := readSource(ctx, f, store)
	if err != nil {
		return runError{err}
	}
	dataset := importer.Clean(frame)
	opts.Logger.InfoContext(ctx, "dataset cleaned",
		slog.Int("source_rows", len(frame.Rows)),
		slog.Int("rows", len(dataset.Rows)),
		slog.Int("columns", len(dataset.Columns)),
	)
	out := report{Table: table, Rows: len(dataset.Rows), Columns: dataset.Columns}

	if !f.skipLoad {
		if opts.OpenDB == nil {
			return runError{errors.New("warehouse database is not configured")}
		}
		db, dialect, err := opts.OpenDB(ctx)
		if err != nil {
			return runError{fmt.Errorf("open warehouse: %w", err)}
		}
		defer func() { _ = db.Close() }()

		loader := importer.NewLoader(db, dialect, opts.Logger)
		if f.batchSize > 0 {
			loader.BatchSize = f.batchSize
		}
		if err := loader.CreateTable(ctx, dataset, table); err != nil {
			return runError{err}
		}
		summary, err := loader.Load(ctx, dataset, table)
		if err != nil {
			return runError{err}
		}
		out.Load = &summary
	}

	if f.snapshot {
		data, err := importer.WriteParquet(dataset)
		if err != nil {
			return runError{err}
		}
		keys, err := importer.PublishSnapshot(ctx, store, table, data, len(dataset.Rows), opts.Now().UTC())
		if err != nil {
			return runError{err}
		}
		out.SnapshotKeys = keys
		if f.keepSnaps > 0 {
			pruned, err := importer.PruneSnapshots(ctx, store, table, f.keepSnaps)
			if err != nil {
				return runError{err}
			}
			out.PrunedKeys = pruned
		}
	}

	encoder := json.NewEncoder(opts.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return runError{err}
	}
	return nil
}

func readSource(ctx context.Context, f flags, store storage.ObjectStore) (importer.Frame, error) {
	if f.demoRows > 0 {
		return demo.NewGenerator(f.demoSeed).Frame(f.demoRows), nil
	}
	name := f.file
	var reader io.ReadCloser
	if f.objectKey != "" {
		name = f.objectKey
		r, err := store.Get(ctx, f.objectKey)
		if err != nil {
			return importer.Frame{}, fmt.Errorf("fetch %s: %w", f.objectKey, err)
		}
		reader = r
	} else {
		file, err := os.Open(f.file)
		if err != nil {
			return importer.Frame{}, fmt.Errorf("open %s: %w", f.file, err)
		}
		reader = file
	}
	defer func() { _ = reader.Close() }()

	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return importer.ReadCSV(reader)
	case ".xlsx", ".xlsm":
		return importer.ReadExcel(reader, f.sheet)
	default:
		return importer.Frame{}, fmt.Errorf("unsupported file type %q: use .xlsx or .csv", path.Ext(name))
	}
}
