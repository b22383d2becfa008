// Command eve is the front-end driver: parse literate documents, inspect
// their span tables, or play with single blocks in a REPL.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	eve "github.com/dasBurdock/Eve"
)

var (
	rootCmd = &cobra.Command{
		Use:     "eve",
		Short:   "Eve front end: parse literate documents into block IR",
		Version: eve.Version,
	}
	configPath string
	asJSON     bool
	workers    int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "eve.yaml", "workspace config file")
	parseCmd.Flags().BoolVar(&asJSON, "json", false, "emit the parse results as JSON")
	parseCmd.Flags().IntVar(&workers, "workers", 4, "number of documents parsed concurrently")
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(spansCmd)
	rootCmd.AddCommand(replCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse [files...]",
	Short: "Parse documents and print their block IR",
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := resolveDocs(args)
		if err != nil {
			return err
		}

		type outcome struct {
			path string
			src  string
			res  *eve.DocResult
		}
		results := make([]outcome, len(docs))

		// one parser instance per document, so documents parse in parallel
		var g errgroup.Group
		g.SetLimit(workers)
		for i, path := range docs {
			i, path := i, path
			g.Go(func() error {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				src := string(data)
				results[i] = outcome{path: path, src: src, res: eve.ParseDoc(src, path)}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed := false
		for _, oc := range results {
			if asJSON {
				b, err := json.MarshalIndent(oc.res.Results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				continue
			}
			fmt.Printf("%s: %d block(s) in %s\n", oc.path, len(oc.res.Results.Blocks), oc.res.Time)
			for _, b := range oc.res.Results.Blocks {
				fmt.Print(eve.FormatBlock(b))
			}
			for _, e := range oc.res.Errors {
				failed = true
				fmt.Fprintln(os.Stderr, eve.WrapErrorWithName(e, oc.path, oc.src))
			}
		}
		if failed {
			return fmt.Errorf("some documents did not parse")
		}
		return nil
	},
}

var spansCmd = &cobra.Command{
	Use:   "spans [file]",
	Short: "Dump a document's span table and extra info",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		res := eve.ParseDoc(string(data), args[0])
		for _, s := range res.Results.Spans {
			fmt.Printf("%6d %6d  %-12s %s\n", s.Start, s.End, s.Kind, s.ID)
		}
		ids := make([]string, 0, len(res.Results.ExtraInfo))
		for id := range res.Results.ExtraInfo {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			info, _ := json.Marshal(res.Results.ExtraInfo[id])
			fmt.Printf("extra %s %s\n", id, info)
		}
		for _, e := range res.Errors {
			fmt.Fprintln(os.Stderr, eve.WrapErrorWithName(e, args[0], string(data)))
		}
		return nil
	},
}

// resolveDocs falls back to the workspace config when no files are named.
func resolveDocs(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if len(cfg.Docs) == 0 {
		return nil, fmt.Errorf("no documents given and %s lists none", configPath)
	}
	return cfg.Docs, nil
}
