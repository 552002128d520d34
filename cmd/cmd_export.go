// cmd_export.go - Export und Import Commands
// Hauptfunktionen: newExportCmd, ExportHandler, newImportCmd, ImportHandler
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/7blacky7/attndistill/convert"
	"github.com/7blacky7/attndistill/model"
)

// newExportCmd - Erstellt den export Command
func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export INPUT OUTPUT",
		Short: "Rewrite a checkpoint with another scope or tensor type",
		Args:  cobra.ExactArgs(2),
		RunE:  ExportHandler,
	}

	exportCmd.Flags().String("scope", "student", "Checkpoint scope: student, distill or all")
	exportCmd.Flags().String("dtype", "", "Tensor type: f32, f16 or bf16")

	return exportCmd
}

// ExportHandler - Schreibt die Tensoren des Scopes in einen neuen Checkpoint
func ExportHandler(cmd *cobra.Command, args []string) error {
	scopeFlag, _ := cmd.Flags().GetString("scope")
	scope, err := model.ParseScope(scopeFlag)
	if err != nil {
		return err
	}

	dtype, err := checkpointDType(cmd)
	if err != nil {
		return err
	}

	b, ctx, err := newBackendContext()
	if err != nil {
		return err
	}
	defer b.Close()
	defer ctx.Close()

	store := model.NewStore()
	kv, err := model.LoadCheckpoint(ctx, args[0], store)
	if err != nil {
		return err
	}

	if err := model.SaveCheckpoint(args[1], store, kv, scope, dtype); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %s (%s, %s) to %s\n", args[0], scope, dtype, args[1])
	return nil
}

// newImportCmd - Erstellt den import Command
func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import STATE_DICT OUTPUT",
		Short: "Convert a PyTorch state_dict into a checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE:  ImportHandler,
	}

	importCmd.Flags().String("prefix", model.StudentPrefix, "Namespace for the imported tensors (student. or distill.<pair>.)")
	importCmd.Flags().StringSlice("replace", nil, "Rename tensor name parts, old=new (repeatable)")
	importCmd.Flags().StringSlice("skip", []string{"num_batches_tracked"}, "Skip tensors whose name ends with this suffix")
	importCmd.Flags().String("dtype", "", "Tensor type: f32, f16 or bf16")

	return importCmd
}

// ImportHandler - Konvertiert ein state_dict nach GGUF
func ImportHandler(cmd *cobra.Command, args []string) error {
	prefix, _ := cmd.Flags().GetString("prefix")
	replace, _ := cmd.Flags().GetStringSlice("replace")
	skip, _ := cmd.Flags().GetStringSlice("skip")

	replacements, err := convert.ParseReplacements(replace)
	if err != nil {
		return err
	}

	dtype, err := checkpointDType(cmd)
	if err != nil {
		return err
	}

	b, ctx, err := newBackendContext()
	if err != nil {
		return err
	}
	defer b.Close()
	defer ctx.Close()

	opts := convert.Options{Prefix: prefix, Replacements: replacements, Skip: skip}
	if err := convert.ConvertTorch(ctx, args[0], args[1], opts, dtype); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %s to %s\n", args[0], args[1])
	return nil
}
