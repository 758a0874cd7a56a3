package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Port       int
	Verbose    bool
}

// ParseServeFlags parses command line flags for the serve command. A zero
// port means the configured one.
func ParseServeFlags(args []string) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs := newFlagSet("serve")
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = from config)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// ImportFlags are the flags for the import command.
type ImportFlags struct {
	ConfigPath string
	Kind       ledger.SourceKind // empty = sniff from the header row
	Currency   string
	Project    string
	DryRun     bool
	Preview    bool
	Force      []string
	Verbose    bool

	Files []string
}

// ParseImportFlags parses the import command line. Remaining arguments are
// the files to import.
func ParseImportFlags(args []string) (*ImportFlags, error) {
	flags := &ImportFlags{}
	var kind, force string

	fs := newFlagSet("import")
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.StringVar(&kind, "kind", "", "Source kind: stripe or bank (empty = detect)")
	fs.StringVar(&flags.Currency, "currency", "", "Currency for rows without one (default from config)")
	fs.StringVar(&flags.Project, "project", "", "Project for rows without one")
	fs.BoolVar(&flags.DryRun, "dry-run", false, "Run the gate and count rows without writing")
	fs.BoolVar(&flags.Preview, "preview", false, "Only show what would be imported")
	fs.StringVar(&force, "force", "", "Comma-separated candidate ids to import despite a heuristic match")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if kind != "" {
		k, ok := ledger.ParseSourceKind(kind)
		if !ok {
			return nil, fmt.Errorf("-kind must be stripe or bank, got %q", kind)
		}
		flags.Kind = k
	}
	for _, id := range strings.Split(force, ",") {
		if id = strings.TrimSpace(id); id != "" {
			flags.Force = append(flags.Force, id)
		}
	}
	flags.Files = fs.Args()
	if len(flags.Files) == 0 {
		return nil, fmt.Errorf("no files given")
	}
	return flags, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}
