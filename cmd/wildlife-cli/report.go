package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/wildlife-tracker/internal/cli"
	"github.com/fpang/wildlife-tracker/internal/report"
)

func runReport(cmd *cobra.Command, args []string) {
	loadConfig()
	dir := cli.ValidateAndResolveDirectory(args[0])

	csvPath, excelPath, err := report.CompileOverallSummary(dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("Failed to compile overall summary")
	}
	if csvPath == "" {
		fmt.Println("No summary files found.")
		return
	}
	fmt.Printf("Wrote %s\nWrote %s\n", csvPath, excelPath)
}
