package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/7blacky7/attndistill/cmd"
	"github.com/7blacky7/attndistill/envconfig"
	"github.com/7blacky7/attndistill/logutil"
)

func main() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
