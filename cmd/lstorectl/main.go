package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/example/lstore/internal/api"
	"github.com/example/lstore/internal/exec"
	"github.com/example/lstore/internal/logging"
)

var (
	errUsage     = errors.New("invalid usage")
	errMetaUsage = errors.New("usage: lstorectl meta [-json] <dir>")
)

type command struct {
	name  string
	usage string
	run   func(args []string, stdout io.Writer) error
}

var commands = []command{
	{"new", "new <dir>", runNew},
	{"create", "create -name <table> -columns <n> [-key <col>] [-index <col,...>] <dir>", runCreate},
	{"drop", "drop -table <table> <dir>", runDrop},
	{"insert", "insert -table <table> <dir> <value>...", runInsert},
	{"select", "select -table <table> -value <v> [-column <col>] [-project 1,0,...] [-version <n>] <dir>", runSelect},
	{"update", "update -table <table> -key <k> -set <col>=<value>... <dir>", runUpdate},
	{"delete", "delete -table <table> -key <k> <dir>", runDelete},
	{"increment", "increment -table <table> -key <k> -column <col> <dir>", runIncrement},
	{"sum", "sum -table <table> -from <k> -to <k> -column <col> [-version <n>] <dir>", runSum},
	{"avg", "avg -table <table> -from <k> -to <k> -column <col> <dir>", runAverage},
	{"merge", "merge -table <table> <dir>", runMerge},
	{"explain", "explain -table <table> -column <col> [-version <n>] <dir>", runExplain},
	{"dump", "dump <dir>", runDump},
	{"meta", "meta [-json] <dir>", runMeta},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("lstorectl", flag.ContinueOnError)
	global.SetOutput(stderr)
	verbose := global.Bool("v", false, "enable debug logging")
	global.Usage = func() { usage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() < 1 {
		usage(stderr)
		return 2
	}
	level := logging.LevelWarn
	if *verbose {
		level = logging.LevelDebug
	}
	if err := logging.Init(logging.Config{Level: level, Output: stderr}); err != nil {
		printError(stderr, err)
		return 1
	}

	name := global.Arg(0)
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		err := cmd.run(global.Args()[1:], stdout)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, errUsage), errors.Is(err, errMetaUsage), errors.Is(err, flag.ErrHelp):
			fmt.Fprintln(stderr, "Usage: lstorectl "+cmd.usage)
			return 2
		default:
			printError(stderr, err)
			return 1
		}
	}
	fmt.Fprintf(stderr, "unknown command: %s\n", name)
	usage(stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("L-Store control utility"))
	fmt.Fprintln(w, "Usage:")
	for _, cmd := range commands {
		fmt.Fprintln(w, "  lstorectl [-v] "+cmd.usage)
	}
}

// newFlagSet returns a flag set whose parse errors are reported to the
// caller instead of exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseDir(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() < 1 {
		return "", errUsage
	}
	return fs.Arg(0), nil
}

// withTable opens the database in dir, runs fn with an executor for the
// named table and closes the database, persisting any change.
func withTable(dir, name string, fn func(*exec.Executor) error) (err error) {
	if name == "" {
		return fmt.Errorf("%w: -table is required", errUsage)
	}
	db, err := api.Open(dir, api.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	executor, err := db.Executor(name)
	if err != nil {
		return err
	}
	return fn(executor)
}

func runNew(args []string, stdout io.Writer) error {
	dir, err := parseDir(newFlagSet("new"), args)
	if err != nil {
		return err
	}
	if err := api.Create(dir); err != nil {
		return err
	}
	printSuccess(stdout, "Created database %s", dir)
	return nil
}

func runCreate(args []string, stdout io.Writer) error {
	fs := newFlagSet("create")
	name := fs.String("name", "", "table name")
	columns := fs.Int("columns", 0, "number of integer columns")
	key := fs.Int("key", 0, "primary key column")
	index := fs.String("index", "", "comma separated secondary index columns")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	indexed, err := parseInts(*index)
	if err != nil {
		return err
	}
	db, err := api.Open(dir, api.DefaultConfig())
	if err != nil {
		return err
	}
	defer db.Close()
	tbl, err := db.CreateTable(*name, *columns, *key)
	if err != nil {
		return err
	}
	for _, col := range indexed {
		if err := tbl.CreateIndex(col); err != nil {
			return err
		}
	}
	if err := db.Flush(); err != nil {
		return err
	}
	printSuccess(stdout, "Table %s created", *name)
	return nil
}

func runDrop(args []string, stdout io.Writer) error {
	fs := newFlagSet("drop")
	name := fs.String("table", "", "table name")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	db, err := api.Open(dir, api.DefaultConfig())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.DropTable(*name); err != nil {
		return err
	}
	printSuccess(stdout, "Table %s dropped", *name)
	return nil
}

func runInsert(args []string, stdout io.Writer) error {
	fs := newFlagSet("insert")
	name := fs.String("table", "", "table name")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	values := make([]int64, 0, fs.NArg()-1)
	for _, arg := range fs.Args()[1:] {
		v, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", arg, err)
		}
		values = append(values, v)
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		if err := e.Insert(values...); err != nil {
			return err
		}
		printSuccess(stdout, "1 record inserted")
		return nil
	})
}

func runSelect(args []string, stdout io.Writer) error {
	fs := newFlagSet("select")
	name := fs.String("table", "", "table name")
	value := fs.Int64("value", 0, "value to match")
	column := fs.Int("column", -1, "column to match (default: primary key)")
	project := fs.String("project", "", "comma separated 0/1 projection mask")
	version := fs.Int("version", 0, "relative version (0 latest, -1 previous, ...)")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	mask, err := parseInts(*project)
	if err != nil {
		return err
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		col := *column
		if col < 0 {
			col = e.Table().KeyColumn()
		}
		recs, err := e.SelectVersion(*value, col, mask, *version)
		if err != nil {
			return err
		}
		renderResult(stdout, exec.FormatRecords(e.Table().NumColumns(), mask, recs))
		return nil
	})
}

func runUpdate(args []string, stdout io.Writer) error {
	fs := newFlagSet("update")
	name := fs.String("table", "", "table name")
	key := fs.Int64("key", 0, "primary key of the record")
	sets := map[int]int64{}
	fs.Func("set", "column assignment <col>=<value> (repeatable)", func(s string) error {
		col, val, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("expected <col>=<value>, got %q", s)
		}
		c, err := strconv.Atoi(col)
		if err != nil {
			return err
		}
		v, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		sets[c] = v
		return nil
	})
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: at least one -set is required", errUsage)
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		values := make([]*int64, e.Table().NumColumns())
		for col, v := range sets {
			v := v
			if col < 0 || col >= len(values) {
				return fmt.Errorf("column %d out of range", col)
			}
			values[col] = &v
		}
		if err := e.Update(*key, values...); err != nil {
			return err
		}
		printSuccess(stdout, "1 record updated")
		return nil
	})
}

func runDelete(args []string, stdout io.Writer) error {
	fs := newFlagSet("delete")
	name := fs.String("table", "", "table name")
	key := fs.Int64("key", 0, "primary key of the record")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		if err := e.Delete(*key); err != nil {
			return err
		}
		printSuccess(stdout, "1 record deleted")
		return nil
	})
}

func runIncrement(args []string, stdout io.Writer) error {
	fs := newFlagSet("increment")
	name := fs.String("table", "", "table name")
	key := fs.Int64("key", 0, "primary key of the record")
	column := fs.Int("column", 0, "column to increment")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		if err := e.Increment(*key, *column); err != nil {
			return err
		}
		printSuccess(stdout, "1 record updated")
		return nil
	})
}

func runSum(args []string, stdout io.Writer) error {
	fs := newFlagSet("sum")
	name := fs.String("table", "", "table name")
	from := fs.Int64("from", 0, "lowest primary key")
	to := fs.Int64("to", 0, "highest primary key")
	column := fs.Int("column", 0, "column to add")
	version := fs.Int("version", 0, "relative version (0 latest, -1 previous, ...)")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		sum, err := e.SumVersion(*from, *to, *column, *version)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, sum)
		return nil
	})
}

func runAverage(args []string, stdout io.Writer) error {
	fs := newFlagSet("avg")
	name := fs.String("table", "", "table name")
	from := fs.Int64("from", 0, "lowest primary key")
	to := fs.Int64("to", 0, "highest primary key")
	column := fs.Int("column", 0, "column to average")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		avg, err := e.Average(*from, *to, *column)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, avg.String())
		return nil
	})
}

func runMerge(args []string, stdout io.Writer) error {
	fs := newFlagSet("merge")
	name := fs.String("table", "", "table name")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		before := e.Table().Stats()
		if err := e.Table().MergeAll(); err != nil {
			return err
		}
		after := e.Table().Stats()
		printSuccess(stdout, "Merged %d tail record(s), purged %d tombstone(s)", before.PendingTail, before.Tombstones-after.Tombstones)
		return nil
	})
}

func runExplain(args []string, stdout io.Writer) error {
	fs := newFlagSet("explain")
	name := fs.String("table", "", "table name")
	column := fs.Int("column", 0, "column to match")
	version := fs.Int("version", 0, "relative version")
	dir, err := parseDir(fs, args)
	if err != nil {
		return err
	}
	return withTable(dir, *name, func(e *exec.Executor) error {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(e.ExplainSelect(*column, *version))
	})
}

func runDump(args []string, stdout io.Writer) error {
	dir, err := parseDir(newFlagSet("dump"), args)
	if err != nil {
		return err
	}
	meta, err := api.LoadDatabaseMeta(dir, api.DefaultConfig())
	if err != nil {
		return err
	}
	if len(meta.Tables) == 0 {
		fmt.Fprintln(stdout, "No tables defined")
		return nil
	}
	for _, t := range meta.Tables {
		renderPanel(stdout, "Table "+t.Name, [][2]string{
			{"columns", strconv.Itoa(t.Columns)},
			{"key", strconv.Itoa(t.KeyColumn)},
			{"indexes", joinInts(t.Indexes)},
			{"records", strconv.Itoa(t.RowCount)},
			{"tombstones", strconv.Itoa(t.Tombstones)},
			{"ranges", strconv.Itoa(t.Ranges)},
			{"tail records", strconv.Itoa(t.PendingTail)},
		})
	}
	return nil
}

func runMeta(args []string, stdout io.Writer) error {
	jsonOut, dir, err := parseMetaArgs(args)
	if err != nil {
		return err
	}
	meta, err := api.LoadDatabaseMeta(dir, api.DefaultConfig())
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(stdout).Encode(meta)
	}
	fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("database"), meta.Database)
	fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("id"), meta.ID)
	for _, t := range meta.Tables {
		fmt.Fprintf(stdout, "  %s (%d columns, %d records)\n", t.Name, t.Columns, t.RowCount)
	}
	return nil
}

func parseMetaArgs(args []string) (bool, string, error) {
	fs := newFlagSet("meta")
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return false, "", err
	}
	switch fs.NArg() {
	case 0:
		return false, "", errMetaUsage
	case 1:
		return *jsonOut, fs.Arg(0), nil
	default:
		return false, "", fmt.Errorf("meta: unexpected arguments %v", fs.Args()[1:])
	}
}

func parseInts(csv string) ([]int, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
