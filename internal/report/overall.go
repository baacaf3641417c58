package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// File names of the cross-video summary inside a session directory.
const (
	OverallCSVName   = "overall_summary.csv"
	OverallExcelName = "overall_summary.xlsx"

	summarySuffix = "_summary.txt"
	excelSheet    = "Sheet1"
)

// Columns of the cross-video summary table.
var OverallColumns = []string{"Video Name", "Animals Detected", "Detected Animals", "Animal Counts"}

// VideoName derives the display name of a video from its summary file name.
// Upload names carry a session timestamp and id in front, so the third
// underscore token is the original name. Names with too few tokens fall back
// to the file name without the summary suffix. An original name that itself
// contains underscores is truncated at its first underscore.
func VideoName(summaryFile string) string {
	parts := strings.Split(summaryFile, "_")
	if len(parts) > 3 {
		return parts[2]
	}
	return strings.Replace(summaryFile, summarySuffix, "", 1)
}

// CompileOverallSummary tallies every *_summary.txt in dir into one row per
// video and writes the table as CSV and XLSX inside dir. When no summaries
// exist it logs a warning and returns empty paths with a nil error.
func CompileOverallSummary(dir string) (csvPath, excelPath string, err error) {
	summaries, err := filepath.Glob(filepath.Join(dir, "*"+summarySuffix))
	if err != nil {
		return "", "", fmt.Errorf("find summaries in %s: %w", dir, err)
	}
	if len(summaries) == 0 {
		log.Warn().Str("dir", dir).Msg("No summary files found")
		return "", "", nil
	}

	counts := make(map[string]map[string]int)
	for _, path := range summaries {
		name := VideoName(filepath.Base(path))
		if counts[name] == nil {
			counts[name] = make(map[string]int)
		}
		if err := tallySummary(path, counts[name]); err != nil {
			log.Error().Err(err).Str("summary", path).Msg("Failed to compile overall summary")
			return "", "", fmt.Errorf("compile overall summary: %w", err)
		}
	}

	rows := overallRows(counts)
	csvPath = filepath.Join(dir, OverallCSVName)
	excelPath = filepath.Join(dir, OverallExcelName)
	if err := writeCSV(csvPath, rows); err != nil {
		log.Error().Err(err).Str("path", csvPath).Msg("Failed to write overall summary")
		return "", "", fmt.Errorf("compile overall summary: %w", err)
	}
	if err := writeExcel(excelPath, rows); err != nil {
		log.Error().Err(err).Str("path", excelPath).Msg("Failed to write overall summary")
		return "", "", fmt.Errorf("compile overall summary: %w", err)
	}

	log.Info().
		Int("videos", len(rows)).
		Str("csv", csvPath).
		Str("excel", excelPath).
		Msg("Overall summary compiled")
	return csvPath, excelPath, nil
}

func tallySummary(path string, counts map[string]int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, DetectedMarker) {
			continue
		}
		animal, _, _ := strings.Cut(line, ":")
		counts[strings.TrimSpace(animal)]++
	}
	return sc.Err()
}

func overallRows(counts map[string]map[string]int) [][]string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		animals := make([]string, 0, len(counts[name]))
		for animal := range counts[name] {
			animals = append(animals, animal)
		}
		sort.Strings(animals)

		status := "No"
		if len(animals) > 0 {
			status = "Yes"
		}
		tallies := make([]string, len(animals))
		for i, animal := range animals {
			tallies[i] = fmt.Sprintf("%s: %d", animal, counts[name][animal])
		}
		rows = append(rows, []string{name, status, strings.Join(animals, ", "), strings.Join(tallies, ", ")})
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(OverallColumns); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeExcel(path string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(excelSheet, "A1", &OverallColumns); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(excelSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
