/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semestra/semestra/internal/db"
	"github.com/semestra/semestra/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import data from other systems",
	Long:  "Import courses, timetable slots, coursework, and exam sittings from external systems",
}

var importLegacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Import from a legacy campus timetable database",
	Long:  "Import courses, weekly timetable slots, open coursework, and exam sittings from a legacy campus PostgreSQL database",
	RunE:  runImportLegacy,
}

var (
	legacyDSN            string
	legacyUserID         string
	legacySkipCoursework bool
	legacyDryRun         bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importLegacyCmd)

	importLegacyCmd.Flags().StringVar(&legacyDSN, "dsn", "", "Legacy PostgreSQL DSN (required)")
	importLegacyCmd.Flags().StringVar(&legacyUserID, "user-id", "", "Semestra user to import into (required)")
	importLegacyCmd.Flags().BoolVar(&legacySkipCoursework, "skip-coursework", false, "Skip coursework import")
	importLegacyCmd.Flags().BoolVar(&legacyDryRun, "dry-run", false, "Walk the legacy data without writing anything")
	importLegacyCmd.MarkFlagRequired("dsn")
	importLegacyCmd.MarkFlagRequired("user-id")
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	imp := importer.NewImporter(database, logger, importer.Options{
		DryRun:         legacyDryRun,
		SkipCoursework: legacySkipCoursework,
	})
	imp.SetProgressCallback(func(step, total int, message string) {
		fmt.Printf("[%d/%d] %s\n", step, total, message)
	})

	stats, err := imp.Import(context.Background(), legacyDSN, legacyUserID)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("\nImport Complete!\n")
	fmt.Printf("  Courses:     %d\n", stats.CoursesImported)
	fmt.Printf("  Meetings:    %d\n", stats.MeetingsImported)
	fmt.Printf("  Assignments: %d\n", stats.AssignmentsImported)
	fmt.Printf("  Exams:       %d\n", stats.ExamsImported)
	if stats.ErrorsEncountered > 0 {
		fmt.Printf("  Errors:      %d (see log)\n", stats.ErrorsEncountered)
	}
	if legacyDryRun {
		fmt.Printf("\nDry run: nothing was written. Run without --dry-run to import.\n")
	}
	return nil
}
