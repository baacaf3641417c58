package main

import (
	"os"

	"github.com/spf13/cobra"
)

// CLI flags
var (
	prefsFlag       string
	everyNFrameFlag int
	pickFlag        bool
	outputDirFlag   string
	outputFileFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "wildlife-cli",
	Short: "Find wildlife in trail camera videos from the command line",
	Long: `Wildlife CLI runs the detection pipeline on local videos without the web
service. A single video returns its summary directly; several videos run as a
batch session whose results can be exported as a ZIP.

The detector service, ffmpeg and output directory are configured through the
same environment variables as wildlife-web.`,
}

var processCmd = &cobra.Command{
	Use:   "process [videos...]",
	Short: "Detect animals in one or more videos",
	Long: `Process samples every Nth frame of each video through the detector.

Examples:
  wildlife-cli process clip.mp4
  wildlife-cli process a.mp4 b.avi --prefs keep_summary,keep_detailed_results
  wildlife-cli process --pick --every-n-frame 5`,
	Run: runProcess,
}

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write the ZIP archive of a batch session",
	Long: `Export rebuilds the archive of a finished batch session from its manifest.

Examples:
  wildlife-cli export 20240501120000_0b6c... -o results.zip`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

var reportCmd = &cobra.Command{
	Use:   "report <directory>",
	Short: "Compile the overall summary of a directory of summaries",
	Long: `Report tallies every *_summary.txt in a directory into overall_summary.csv
and overall_summary.xlsx next to them.`,
	Args: cobra.ExactArgs(1),
	Run:  runReport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputDirFlag, "output-dir", "", "Directory for uploads and results (default from TEMP_PREDICTIONS_DIR)")

	processCmd.Flags().StringVarP(&prefsFlag, "prefs", "p", "", "Comma-separated preferences (prompted when omitted)")
	processCmd.Flags().IntVarP(&everyNFrameFlag, "every-n-frame", "n", 0, "Sample every Nth frame (default from EVERY_N_FRAME)")
	processCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose videos with a native file dialog")

	exportCmd.Flags().StringVarP(&outputFileFlag, "output", "o", "", "Archive path (default <session-id>_output.zip)")

	rootCmd.AddCommand(processCmd, exportCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
