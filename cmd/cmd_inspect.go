// cmd_inspect.go - Inspect Command fuer Checkpoints
// Hauptfunktionen: newInspectCmd, InspectHandler, dumpTensors, formatValue
package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/7blacky7/attndistill/fs/ggml"
	"github.com/7blacky7/attndistill/ml"
)

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect CHECKPOINT",
		Short: "Show metadata and tensors of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}

	inspectCmd.Flags().Bool("kv", false, "Show metadata instead of tensors")
	inspectCmd.Flags().String("prefix", "", "Only show tensors whose name starts with this prefix")
	inspectCmd.Flags().Bool("values", false, "Print tensor values instead of the summary table")
	inspectCmd.Flags().Int("edge-items", 3, "Number of values printed at each end of a dimension with --values")

	return inspectCmd
}

// InspectHandler - Gibt Metadaten oder Tensoren eines Checkpoints aus
func InspectHandler(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	g, err := ggml.Decode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	w := cmd.OutOrStdout()
	if kv, _ := cmd.Flags().GetBool("kv"); kv {
		keys := slices.Sorted(g.KV().Keys())

		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, formatValue(g.KV().Value(k))})
		}

		printTable(w, []string{"KEY", "VALUE"}, rows)
		return nil
	}

	prefix, _ := cmd.Flags().GetString("prefix")
	if values, _ := cmd.Flags().GetBool("values"); values {
		edgeItems, _ := cmd.Flags().GetInt("edge-items")
		return dumpTensors(cmd, g, prefix, edgeItems)
	}

	var rows [][]string
	for _, t := range g.Tensors().Items(prefix) {
		shape := make([]string, len(t.Dims()))
		for i, d := range t.Dims() {
			shape[i] = fmt.Sprint(d)
		}

		rows = append(rows, []string{t.Name, t.Type(), "[" + strings.Join(shape, ", ") + "]", humanBytes(t.Size())})
	}

	printTable(w, []string{"NAME", "TYPE", "SHAPE", "SIZE"}, rows)
	fmt.Fprintf(w, "%d tensors, %d parameters\n", len(rows), g.KV().ParameterCount())
	return nil
}

// dumpTensors - Gibt die Werte aller Tensoren mit dem Praefix aus
func dumpTensors(cmd *cobra.Command, g *ggml.GGML, prefix string, edgeItems int) error {
	b, ctx, err := newBackendContext()
	if err != nil {
		return err
	}
	defer b.Close()
	defer ctx.Close()

	w := cmd.OutOrStdout()
	for _, t := range g.Tensors().Items(prefix) {
		data, err := g.ReadFloats(t)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name, err)
		}

		fmt.Fprintf(w, "%s %v\n%s\n", t.Name, t.Dims(), ml.Dump(ctx.FromFloats(data, t.Dims()...), ml.DumpWithEdgeItems(edgeItems)))
	}

	return nil
}

// formatValue - Kurzdarstellung eines KV-Werts, mehrzeilige Werte in einer Zeile
func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return strings.ReplaceAll(strings.TrimSpace(v), "\n", "; ")
	case []string:
		return "[" + strings.Join(v, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

// humanBytes - Groesse in B, KB, MB oder GB
func humanBytes(b uint64) string {
	const unit = 1000
	switch {
	case b >= unit*unit*unit:
		return fmt.Sprintf("%.1f GB", float64(b)/(unit*unit*unit))
	case b >= unit*unit:
		return fmt.Sprintf("%.1f MB", float64(b)/(unit*unit))
	case b >= unit:
		return fmt.Sprintf("%.1f KB", float64(b)/unit)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
