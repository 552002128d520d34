// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs, newBackendContext, loadConfig
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/envconfig"
	"github.com/7blacky7/attndistill/ml"
	_ "github.com/7blacky7/attndistill/ml/backend"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "attndistill",
		Short:         "Attention-based masked feature-map distillation",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	initCmd := newInitCmd()
	runCmd := newRunCmd()
	inspectCmd := newInspectCmd()
	exportCmd := newExportCmd()
	importCmd := newImportCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["ATTNDISTILL_DEBUG"]}

	for _, cmd := range []*cobra.Command{initCmd, runCmd, inspectCmd, exportCmd, importCmd} {
		switch cmd {
		case initCmd, runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["ATTNDISTILL_DEBUG"],
				envVars["ATTNDISTILL_CONFIG"],
				envVars["ATTNDISTILL_SEED"],
				envVars["ATTNDISTILL_BACKEND"],
				envVars["ATTNDISTILL_NUM_THREADS"],
				envVars["ATTNDISTILL_DTYPE"],
				envVars["ATTNDISTILL_PLAIN"],
			})
		case inspectCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["ATTNDISTILL_DEBUG"], envVars["ATTNDISTILL_PLAIN"]})
		case exportCmd, importCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["ATTNDISTILL_DEBUG"], envVars["ATTNDISTILL_DTYPE"]})
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(initCmd, runCmd, inspectCmd, exportCmd, importCmd)
	return rootCmd
}

// newBackendContext - Erstellt Backend und Kontext aus der Umgebung
func newBackendContext() (ml.Backend, ml.Context, error) {
	b, err := ml.NewBackend(envconfig.Backend(), ml.BackendParams{NumThreads: int(envconfig.NumThreads())})
	if err != nil {
		return nil, nil, err
	}
	return b, b.NewContext(), nil
}

// loadConfig - Liest die Laufkonfiguration aus --config, ATTNDISTILL_CONFIG
// oder den Defaults. ATTNDISTILL_SEED ersetzt den Seed.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = envconfig.ConfigPath()
	}

	var c *config.Config
	if path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return nil, err
		}
	} else {
		c = config.Default()
	}

	if seed, ok := envconfig.Seed(); ok {
		slog.Debug("seed from environment", "seed", seed)
		c.Seed = seed
	}

	return c, nil
}

// checkpointDType - Liest --dtype, sonst ATTNDISTILL_DTYPE
func checkpointDType(cmd *cobra.Command) (ml.DType, error) {
	s, _ := cmd.Flags().GetString("dtype")
	if s == "" {
		s = envconfig.DType()
	}
	return ml.ParseDType(s)
}
