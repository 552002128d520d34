// cmd_init.go - Init Command
// Hauptfunktionen: newInitCmd, InitHandler
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/7blacky7/attndistill/distill"
	"github.com/7blacky7/attndistill/model"
)

// newInitCmd - Erstellt den init Command
func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init OUTPUT",
		Short: "Create adapter parameters for all configured pairs and write a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  InitHandler,
	}

	initCmd.Flags().StringP("config", "c", "", "Path of the YAML run configuration")
	initCmd.Flags().String("from", "", "Existing checkpoint whose parameters are kept")
	initCmd.Flags().String("scope", "distill", "Checkpoint scope: student, distill or all")
	initCmd.Flags().String("dtype", "", "Tensor type: f32, f16 or bf16")

	return initCmd
}

// InitHandler - Legt fehlende Adapter-Parameter an und schreibt sie
func InitHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("no pairs configured")
	}

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
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		if _, err := model.LoadCheckpoint(ctx, from, store); err != nil {
			return err
		}
	}

	d, err := distill.New(ctx, c, store)
	if err != nil {
		return err
	}

	kv, err := d.Metadata()
	if err != nil {
		return err
	}

	if err := model.SaveCheckpoint(args[0], store, kv, scope, dtype); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d parameters for %d pairs to %s\n", len(store.Names(model.DistillPrefix)), len(c.Pairs), args[0])
	return nil
}
