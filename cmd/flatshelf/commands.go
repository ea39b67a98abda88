package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andreyvit/flatshelf"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type globalFlags struct {
	dbPath  string
	backend string
	recover bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "flatshelf",
		Short:         "Inspect and edit a flatshelf store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.dbPath, "db", "shelf.db", "data file (the index snapshot lives next to it)")
	root.PersistentFlags().StringVar(&g.backend, "backend", "bolt", "flat store backend: bolt or badger")
	root.PersistentFlags().BoolVar(&g.recover, "recover", false, "rebuild the index from flat entries if the snapshot is missing or broken")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log flat store operations")

	root.AddCommand(
		newGetCmd(&g),
		newSetCmd(&g),
		newPopCmd(&g),
		newKeysCmd(&g),
		newDumpCmd(&g),
		newFlatCmd(&g),
		newRebuildCmd(&g),
		newStatsCmd(&g),
	)
	return root
}

// withStore opens the store described by the global flags for the duration
// of f.
func withStore(g *globalFlags, f func(s *flatshelf.Store) error) error {
	backend, err := flatshelf.ParseBackend(g.backend)
	if err != nil {
		return err
	}
	opt := flatshelf.Options{
		Backend:      backend,
		RecoverIndex: g.recover,
		Verbose:      g.verbose,
	}
	if g.verbose {
		opt.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return flatshelf.With(g.dbPath, opt, f)
}

func newGetCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *flatshelf.Store) error {
				v, err := s.Get(args[0])
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), format, v)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

func newSetCmd(g *globalFlags) *cobra.Command {
	var asSet bool
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE (YAML or JSON) under KEY, replacing what was there",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1], asSet)
			if err != nil {
				return err
			}
			return withStore(g, func(s *flatshelf.Store) error {
				return s.Set(args[0], v)
			})
		},
	}
	cmd.Flags().BoolVar(&asSet, "set", false, "store a list VALUE as a set")
	return cmd
}

func newPopCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "pop KEY",
		Short: "Remove KEY and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *flatshelf.Store) error {
				v, err := s.Pop(args[0])
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), format, v)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

func newKeysCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [KEY]",
		Short: "List the keys of the top-level mapping or of the mapping at KEY",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *flatshelf.Store) error {
				d := s.Root()
				if len(args) > 0 {
					v, err := s.Get(args[0])
					if err != nil {
						return err
					}
					var ok bool
					d, ok = v.(*flatshelf.Dict)
					if !ok {
						return fmt.Errorf("%s: %w", args[0], flatshelf.ErrNotInterior)
					}
				}
				w := cmd.OutOrStdout()
				for k := range d.Keys() {
					fmt.Fprintln(w, k)
				}
				return nil
			})
		},
	}
}

func newDumpCmd(g *globalFlags) *cobra.Command {
	var format string
	var tree bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the whole store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *flatshelf.Store) error {
				if tree {
					fmt.Fprint(cmd.OutOrStdout(), s.Dump(flatshelf.DumpIndex|flatshelf.DumpValues))
					return nil
				}
				m, err := s.ToDict()
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), format, m)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&tree, "tree", false, "print the key index with leaf kinds instead")
	return cmd
}

func newFlatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "flat",
		Short: "List the raw flat entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *flatshelf.Store) error {
				fmt.Fprint(cmd.OutOrStdout(), s.Dump(flatshelf.DumpFlat))
				return nil
			})
		},
	}
}

func newRebuildCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the key index from the flat entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *flatshelf.Store) error {
				return s.Rebuild()
			})
		},
	}
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *flatshelf.Store) error {
				st := s.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "mappings: %d\nleaves: %d\nempty_mappings: %d\nflat_entries: %d\n",
					st.Mappings, st.Leaves, st.EmptyMappings, st.FlatEntries())
				return nil
			})
		},
	}
}

// parseValue reads a command-line value as YAML, which also accepts JSON and
// bare scalars.
func parseValue(text string, asSet bool) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	if asSet {
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("--set needs a list value, got %T", v)
		}
		set := &flatshelf.Set{}
		for _, item := range items {
			if err := set.Add(item); err != nil {
				return nil, err
			}
		}
		return set, nil
	}
	return v, nil
}

func printValue(w io.Writer, format string, v any) error {
	p, err := plain(v)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// plain converts proxies and sets into maps and slices that any encoder
// understands.
func plain(v any) (any, error) {
	switch x := v.(type) {
	case *flatshelf.Dict:
		m, err := x.ToDict()
		if err != nil {
			return nil, err
		}
		return plain(m)
	case *flatshelf.List:
		return plain(x.Values())
	case *flatshelf.SetNode:
		return plain(x.Values())
	case *flatshelf.Set:
		return plain(x.Values())
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			pe, err := plain(e)
			if err != nil {
				return nil, err
			}
			out[k] = pe
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			pe, err := plain(e)
			if err != nil {
				return nil, err
			}
			out[i] = pe
		}
		return out, nil
	default:
		return v, nil
	}
}
