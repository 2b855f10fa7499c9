package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"promptd/internal/gguf"
)

func newInspectCmd() *cobra.Command {
	var showKV, showTensors bool
	cmd := &cobra.Command{
		Use:   "inspect <model.gguf>",
		Short: "Print the metadata of a GGUF model artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := gguf.Open(args[0])
			if err != nil {
				return err
			}
			return printInspect(cmd.OutOrStdout(), args[0], f, showKV, showTensors)
		},
	}
	cmd.Flags().BoolVar(&showKV, "kv", false, "Also print every metadata key")
	cmd.Flags().BoolVar(&showTensors, "tensors", false, "Also print the tensor table")
	return cmd
}

func printInspect(w io.Writer, path string, f *gguf.File, showKV, showTensors bool) error {
	section := func(header string, cols []string, rows [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		if cols != nil {
			table.SetHeader(cols)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
		}
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(rows)
		table.Render()
		fmt.Fprintln(w)
	}

	bos, eos := "-", "-"
	if id, ok := f.BOS(); ok {
		bos = strconv.Itoa(int(id))
	}
	if id, ok := f.EOS(); ok {
		eos = strconv.Itoa(int(id))
	}
	section("Model", nil, [][]string{
		{"", "path", path},
		{"", "name", orDash(f.Name())},
		{"", "architecture", orDash(f.Architecture())},
		{"", "quantization", orDash(f.FileType())},
		{"", "gguf version", strconv.Itoa(int(f.Version))},
		{"", "size", humanBytes(f.Size)},
	})
	section("Parameters", nil, [][]string{
		{"", "context length", strconv.FormatUint(f.ContextLength(), 10)},
		{"", "embedding length", strconv.FormatUint(f.EmbeddingLength(), 10)},
		{"", "blocks", strconv.FormatUint(f.BlockCount(), 10)},
		{"", "tensors", strconv.Itoa(len(f.Tensors))},
	})
	section("Tokenizer", nil, [][]string{
		{"", "model", orDash(f.TokenizerModel())},
		{"", "vocabulary", strconv.Itoa(len(f.Tokens()))},
		{"", "bos token", bos},
		{"", "eos token", eos},
	})

	if showKV {
		keys := make([]string, 0, len(f.KV))
		for k := range f.KV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{"", k, kvString(f.KV[k])})
		}
		section("Metadata", nil, rows)
	}
	if showTensors {
		rows := make([][]string, 0, len(f.Tensors))
		for _, t := range f.Tensors {
			dims := make([]string, len(t.Dims))
			for i, d := range t.Dims {
				dims[i] = strconv.FormatUint(d, 10)
			}
			rows = append(rows, []string{t.Name, t.Type.String(), strings.Join(dims, "x"), humanBytes(int64(t.Bytes()))})
		}
		section("Tensors", []string{"NAME", "TYPE", "SHAPE", "SIZE"}, rows)
	}
	return nil
}

func kvString(v any) string {
	switch x := v.(type) {
	case *gguf.Array:
		return fmt.Sprintf("[%d items]", x.Len)
	case string:
		if len(x) > 60 {
			return strconv.Quote(x[:57] + "...")
		}
		return strconv.Quote(x)
	}
	return fmt.Sprint(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
