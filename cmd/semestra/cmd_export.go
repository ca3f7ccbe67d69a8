/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/semestra/semestra/internal/schedule"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's planner as an iCalendar file",
	Long:  "Write the study sessions, exams, and calendar events of a user to an .ics file",
	RunE:  runExport,
}

var (
	exportUserID string
	exportFrom   string
	exportTo     string
	exportOut    string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportUserID, "user-id", "", "User to export (required)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Range start, RFC 3339 (default: now)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Range end, RFC 3339 (default: from + 14 days)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output path (default: the generated filename)")
	exportCmd.MarkFlagRequired("user-id")
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	from := time.Now()
	if exportFrom != "" {
		parsed, err := time.Parse(time.RFC3339, exportFrom)
		if err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
		from = parsed
	}
	to := from.Add(14 * 24 * time.Hour)
	if exportTo != "" {
		parsed, err := time.Parse(time.RFC3339, exportTo)
		if err != nil {
			return fmt.Errorf("parse --to: %w", err)
		}
		to = parsed
	}
	if !to.After(from) {
		return fmt.Errorf("--to must be after --from")
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	exporter := schedule.NewExportService(database, logger)
	result, err := exporter.ExportToICal(context.Background(), exportUserID, from, to)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	out := exportOut
	if out == "" {
		out = result.Filename
	}
	if err := os.WriteFile(out, result.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Printf("Exported %s\n", out)
	return nil
}
