// cmd_run.go - Run Command: ein synthetischer Distillationsschritt
// Hauptfunktionen: newRunCmd, RunHandler, synthetic
package cmd

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/7blacky7/attndistill/distill"
	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/model"
)

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one deterministic distillation step on synthetic activations",
		Args:  cobra.NoArgs,
		RunE:  RunHandler,
	}

	runCmd.Flags().StringP("config", "c", "", "Path of the YAML run configuration")
	runCmd.Flags().String("checkpoint", "", "Checkpoint with adapter (and student) parameters")
	runCmd.Flags().Int("batch", 1, "Batch size of the synthetic activations")
	runCmd.Flags().Int("height", 8, "Teacher feature map height")
	runCmd.Flags().Int("width", 8, "Teacher feature map width")
	runCmd.Flags().Int("student-height", 0, "Student feature map height (default: teacher height)")
	runCmd.Flags().Int("student-width", 0, "Student feature map width (default: teacher width)")
	runCmd.Flags().String("save", "", "Write all parameters to this checkpoint after the step")
	runCmd.Flags().String("dtype", "", "Tensor type for --save: f32, f16 or bf16")

	return runCmd
}

// RunHandler - Fuehrt einen Schritt aus und gibt die Loss-Terme aus
func RunHandler(cmd *cobra.Command, args []string) error {
	b, ctx, err := newBackendContext()
	if err != nil {
		return err
	}
	defer b.Close()
	defer ctx.Close()

	store := model.NewStore()

	var embedded string
	if path, _ := cmd.Flags().GetString("checkpoint"); path != "" {
		kv, err := model.LoadCheckpoint(ctx, path, store)
		if err != nil {
			return err
		}
		embedded = kv.String("general.config")
	}

	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// ohne explizite Konfiguration die des Checkpoints verwenden
	if path, _ := cmd.Flags().GetString("config"); path == "" && len(c.Pairs) == 0 && embedded != "" {
		if c, err = config.Parse([]byte(embedded)); err != nil {
			return fmt.Errorf("checkpoint config: %w", err)
		}
	}

	if len(c.Pairs) == 0 {
		return errors.New("no pairs configured")
	}

	d, err := distill.New(ctx, c, store)
	if err != nil {
		return err
	}

	batch, _ := cmd.Flags().GetInt("batch")
	height, _ := cmd.Flags().GetInt("height")
	width, _ := cmd.Flags().GetInt("width")
	studentHeight, _ := cmd.Flags().GetInt("student-height")
	studentWidth, _ := cmd.Flags().GetInt("student-width")
	if studentHeight == 0 {
		studentHeight = height
	}
	if studentWidth == 0 {
		studentWidth = width
	}
	if batch < 1 || height < 1 || width < 1 || studentHeight < 1 || studentWidth < 1 {
		return errors.New("batch and feature map sizes must be >= 1")
	}

	bridge := distill.NewBridge(ctx)
	for _, p := range c.Pairs {
		bridge.Hook(distill.SideStudent, p.StudentLayer)(synthetic(ctx, c.Seed, "student/"+p.StudentLayer, batch, p.StudentChannels, studentHeight, studentWidth))
		bridge.Hook(distill.SideTeacher, p.TeacherLayer)(synthetic(ctx, c.Seed, "teacher/"+p.TeacherLayer, batch, p.TeacherChannels, height, width))
		if p.Context() != p.TeacherLayer {
			bridge.Hook(distill.SideTeacher, p.Context())(synthetic(ctx, c.Seed, "teacher/"+p.Context(), batch, p.ContextDim(), height, width))
		}
	}

	result, err := d.Step(ctx, bridge)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, t := range result.Terms {
		rows = append(rows, []string{
			t.Pair,
			strconv.FormatFloat(t.Loss, 'g', -1, 64),
			strconv.FormatFloat(t.Factor, 'g', -1, 64),
			fmt.Sprint(t.Degenerate),
		})
	}
	rows = append(rows, []string{"TOTAL", strconv.FormatFloat(result.Total, 'g', -1, 64), "", ""})
	printTable(cmd.OutOrStdout(), []string{"PAIR", "LOSS", "FACTOR", "DEGENERATE"}, rows)

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		dtype, err := checkpointDType(cmd)
		if err != nil {
			return err
		}

		kv, err := d.Metadata()
		if err != nil {
			return err
		}
		if err := model.SaveCheckpoint(path, store, kv, model.ScopeAll, dtype); err != nil {
			return err
		}
	}

	return nil
}

// synthetic erzeugt eine reproduzierbare Aktivierung N(0, 1).
// Der Zufallsstrom haengt nur von seed und name ab.
func synthetic(ctx ml.Context, seed uint64, name string, shape ...int) ml.Tensor {
	h := fnv.New64a()
	h.Write([]byte(name))
	r := rand.New(rand.NewPCG(seed, h.Sum64()))

	n := 1
	for _, d := range shape {
		n *= d
	}

	values := make([]float32, n)
	for i := range values {
		values[i] = float32(r.NormFloat64())
	}

	slog.Debug("synthetic activation", "name", name, "shape", shape)
	return ctx.FromFloats(values, shape...)
}
