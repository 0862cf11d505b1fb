// Command mapctl validates, exports and generates map documents offline.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/export"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/typeid"
)

var errInvalid = errors.New("invalid map documents")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mapctl",
		Short:        "Work with map editor documents",
		SilenceUsage: true,
	}
	root.AddCommand(newValidateCmd(), newSVGCmd(), newSampleCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file...>",
		Short: "Check map documents for broken invariants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				doc, err := readDocument(path)
				if err == nil {
					err = doc.Validate()
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s\n", path)
					for _, line := range strings.Split(err.Error(), "\n") {
						fmt.Fprintf(out, "  %s\n", line)
					}
					continue
				}
				fmt.Fprintf(out, "ok   %s (%d shapes)\n", path, len(doc.Shapes))
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalid, failed, len(args))
			}
			return nil
		},
	}
}

func newSVGCmd() *cobra.Command {
	var (
		output       string
		categories   []string
		noBackground bool
	)
	cmd := &cobra.Command{
		Use:   "svg <file>",
		Short: "Render a map document as SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if err := doc.Validate(); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			opts := export.Options{NoBackground: noBackground}
			for _, raw := range categories {
				c, err := shape.ParseCategory(raw)
				if err != nil {
					return err
				}
				opts.Categories = append(opts.Categories, c)
			}

			return writeOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
				return export.WriteSVG(w, doc, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "only include these shape categories")
	cmd.Flags().BoolVar(&noBackground, "no-background", false, "omit the background fill")
	return cmd
}

func newSampleCmd() *cobra.Command {
	var (
		output string
		name   string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample office map document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := document.NewSampleDocument(typeid.NewMapID())
			if name != "" {
				doc.Map.Name = name
			}
			return writeOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
				return writeJSON(w, doc)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&name, "name", "", "map name")
	return cmd
}

func readDocument(path string) (*document.MapDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// writeOutput sends fn's output to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
