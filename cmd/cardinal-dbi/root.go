package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/inconshreveable/log15"
	"github.com/openrelayxyz/cardinal-types/hexutil"
	"github.com/spf13/cobra"

	dbi "github.com/openrelayxyz/cardinal-dbi"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
	"github.com/openrelayxyz/cardinal-dbi/resolver"
)

var errAbsent = errors.New("not found")

type options struct {
	uri      string
	table    string
	logLevel string
	hex      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "cardinal-dbi",
		Short:         "Inspect and edit ordered key/value tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.LvlFromString(opts.logLevel)
			if err != nil {
				return err
			}
			log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(cmd.ErrOrStderr(), log.TerminalFormat())))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.uri, "db", "", "Database to open, e.g. lmdb:///var/data?mapsize=1073741824")
	flags.StringVar(&opts.table, "table", "", "Table name")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (crit, error, warn, info, debug)")
	flags.BoolVar(&opts.hex, "hex", false, "Read and print keys and values as 0x-prefixed hex")
	cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(
		getCmd(opts), hasCmd(opts), putCmd(opts), delCmd(opts),
		navCmd(opts, "first", "Print the smallest key", cobra.NoArgs,
			func(l *dbi.Loose, _ interface{}) ([]byte, bool, error) { return l.First() }),
		navCmd(opts, "last", "Print the largest key", cobra.NoArgs,
			func(l *dbi.Loose, _ interface{}) ([]byte, bool, error) { return l.Last() }),
		navCmd(opts, "next [key]", "Print the smallest key after key", cobra.MaximumNArgs(1), (*dbi.Loose).Next),
		navCmd(opts, "prev [key]", "Print the largest key before key", cobra.MaximumNArgs(1), (*dbi.Loose).Prev),
		navCmd(opts, "lower-bound [key]", "Print the smallest key at or after key", cobra.MaximumNArgs(1), (*dbi.Loose).LowerBound),
		dumpCmd(opts), loadCmd(opts),
	)
	return cmd
}

// withTable opens the configured database, runs fn in one transaction and
// closes everything again.
func (o *options) withTable(writable bool, fn func(*dbi.Table) error) error {
	database, err := resolver.ResolveDatabase(o.uri)
	if err != nil {
		return err
	}
	s := dbpkg.NewSession(database)
	defer s.Close()
	table, err := s.Table(o.table)
	if err != nil {
		return err
	}
	if writable {
		return s.Update(func() error { return fn(table) })
	}
	return s.View(func() error { return fn(table) })
}

// arg turns a command line argument into the type the Loose table wants.
func (o *options) arg(s string) (interface{}, error) {
	if o.hex {
		return hexutil.Decode(s)
	}
	return s, nil
}

func (o *options) print(w io.Writer, b []byte) {
	if o.hex {
		fmt.Fprintln(w, hexutil.Encode(b))
		return
	}
	fmt.Fprintln(w, string(b))
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
