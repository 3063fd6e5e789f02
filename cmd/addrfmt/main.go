package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/address-formatter/internal/formatter"
	"github.com/yourorg/address-formatter/internal/registry"
)

var version = "0.1.0"

// Options shared by every subcommand
type options struct {
	rulesDir      string
	abbreviate    bool
	appendCountry bool
	output        string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "addrfmt",
		Short: "Format postal addresses by country convention",
		Long: `addrfmt turns address components (road, house_number, city, ...) into
a postal address laid out the way the destination country writes it.

Components are read as a JSON object. Unquoted keys, single quotes and
trailing commas are accepted.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.rulesDir, "rules", "", "Rule directory (default: built-in rules)")
	rootCmd.PersistentFlags().BoolVar(&opts.abbreviate, "abbreviate", false, "Abbreviate street types and similar words")
	rootCmd.PersistentFlags().BoolVar(&opts.appendCountry, "append-country", false, "Add the country name when it is missing")
	rootCmd.PersistentFlags().StringVar(&opts.output, "output", "string", `Result shape: "string" or "array" (one element per line)`)

	rootCmd.AddCommand(formatCmd(opts))
	rootCmd.AddCommand(batchCmd(opts))
	rootCmd.AddCommand(countriesCmd(opts))
	return rootCmd
}

func (o *options) registry() (*registry.Registry, error) {
	if o.rulesDir == "" {
		return registry.Default()
	}
	return registry.LoadFS(os.DirFS(o.rulesDir))
}

func (o *options) formatter() (*formatter.Formatter, error) {
	reg, err := o.registry()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return formatter.New(reg,
		formatter.WithAbbreviate(o.abbreviate),
		formatter.WithAppendCountry(o.appendCountry),
	)
}

func formatCmd(opts *options) *cobra.Command {
	var country string
	cmd := &cobra.Command{
		Use:   "format [file|-]",
		Short: "Format one address",
		Long: `Format one address read from a file or standard input.

Example:
  echo '{road: "Hamilton Avenue", house_number: 301, city: "Palo Alto", country_code: US}' | addrfmt format
  addrfmt format --country BE address.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := formatter.ParseOutput(opts.output)
			if err != nil {
				return err
			}
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			out, err := f.FormatRaw(cmd.Context(), data, country)
			if err != nil {
				return err
			}
			if output == formatter.OutputArray {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(formatter.Lines(out))
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "Country code to use when the input has no valid one")
	return cmd
}

type batchLine struct {
	Line        int      `json:"line"`
	Formatted   string   `json:"formatted,omitempty"`
	Lines       []string `json:"lines,omitempty"`
	CountryCode string   `json:"country_code,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func batchCmd(opts *options) *cobra.Command {
	var (
		country     string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch [file|-]",
		Short: "Format newline-delimited JSON addresses",
		Long: `Format one address per input line and write one JSON result per line,
in input order. Blank lines are skipped. A line that fails is reported with
its error and does not stop the batch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := formatter.ParseOutput(opts.output)
			if err != nil {
				return err
			}
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = 1
			}
			in, closeIn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeIn()

			type item struct {
				line int
				data []byte
			}
			var items []item
			sc := bufio.NewScanner(in)
			sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for n := 1; sc.Scan(); n++ {
				text := strings.TrimSpace(sc.Text())
				if text == "" {
					continue
				}
				items = append(items, item{line: n, data: []byte(text)})
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			results := make([]batchLine, len(items))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for i, it := range items {
				i, it := i, it
				g.Go(func() error {
					res := batchLine{Line: it.line}
					p, err := prepareRaw(ctx, f, it.data, country)
					if err == nil {
						res.CountryCode = p.CountryCode
						res.Formatted, err = f.Render(p)
					}
					if err != nil {
						res = batchLine{Line: it.line, Error: err.Error()}
					} else if output == formatter.OutputArray {
						res.Lines = formatter.Lines(res.Formatted)
						res.Formatted = ""
					}
					results[i] = res
					return nil
				})
			}
			_ = g.Wait()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, res := range results {
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "Country code to use when a line has no valid one")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Lines formatted in parallel")
	return cmd
}

func countriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List the country codes with rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, code := range reg.Codes() {
				name, _ := reg.CountryName(code)
				rec, _ := reg.Country(code)
				if rec.UseCountry != "" {
					name = strings.TrimSpace(name + " (as " + rec.UseCountry + ")")
				}
				if _, err := fmt.Fprintf(w, "%s\t%s\n", code, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
