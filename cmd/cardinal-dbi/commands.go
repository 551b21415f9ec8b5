package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openrelayxyz/cardinal-types/hexutil"
	"github.com/spf13/cobra"

	dbi "github.com/openrelayxyz/cardinal-dbi"
	"github.com/openrelayxyz/cardinal-dbi/snapshot"
)

func getCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value stored at key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := o.arg(args[0])
			if err != nil {
				return err
			}
			return o.withTable(false, func(t *dbi.Table) error {
				v, found, err := t.Loose().Get(key)
				if err != nil {
					return err
				}
				if !found {
					return errAbsent
				}
				o.print(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func hasCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "has [key]",
		Short: "Report whether key is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := o.arg(args[0])
			if err != nil {
				return err
			}
			return o.withTable(false, func(t *dbi.Table) error {
				ok, err := t.Loose().Has(key)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func putCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Store value at key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := o.arg(args[0])
			if err != nil {
				return err
			}
			value, err := o.arg(args[1])
			if err != nil {
				return err
			}
			return o.withTable(true, func(t *dbi.Table) error {
				return t.Loose().Put(key, value)
			})
		},
	}
}

func delCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "del [key]",
		Aliases: []string{"rm"},
		Short:   "Remove key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := o.arg(args[0])
			if err != nil {
				return err
			}
			return o.withTable(true, func(t *dbi.Table) error {
				existed, err := t.Loose().Del(key)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), existed)
				return nil
			})
		},
	}
}

type navFunc func(l *dbi.Loose, anchor interface{}) ([]byte, bool, error)

// navCmd builds a navigation command. A missing key argument is the absent
// anchor.
func navCmd(o *options, use, short string, args cobra.PositionalArgs, nav navFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			var anchor interface{}
			if len(args) == 1 {
				var err error
				if anchor, err = o.arg(args[0]); err != nil {
					return err
				}
			}
			return o.withTable(false, func(t *dbi.Table) error {
				k, found, err := nav(t.Loose(), anchor)
				if err != nil {
					return err
				}
				if !found {
					return errAbsent
				}
				o.print(cmd.OutOrStdout(), k)
				return nil
			})
		},
	}
}

type output struct {
	Key   hexutil.Bytes `json:"key"`
	Value hexutil.Bytes `json:"value"`
}

func dumpCmd(o *options) *cobra.Command {
	var avroPath string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write every record as JSON lines, or as an avro snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withTable(false, func(t *dbi.Table) error {
				if avroPath != "" {
					data, err := snapshot.Export(t)
					if err != nil {
						return err
					}
					return os.WriteFile(avroPath, data, 0644)
				}
				jsonStream := json.NewEncoder(cmd.OutOrStdout())
				return snapshot.Walk(t, func(kv dbi.KeyValue) error {
					return jsonStream.Encode(output{kv.Key, kv.Value})
				})
			})
		},
	}
	cmd.Flags().StringVar(&avroPath, "avro", "", "Write an avro snapshot to this file instead of JSON")
	return cmd
}

func loadCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load [file]",
		Short: "Put every record of an avro snapshot (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(args[0])
			if err != nil {
				return err
			}
			return o.withTable(true, func(t *dbi.Table) error {
				n, err := snapshot.Import(t, data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d records\n", n)
				return nil
			})
		},
	}
}
