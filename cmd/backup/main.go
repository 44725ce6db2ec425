package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"savequest/internal/config"
	"savequest/internal/database"
	"savequest/internal/service"
	"savequest/pkg/logging"
)

func main() {
	logging.Setup()

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)

	exportOutput := exportCmd.String("output", "", "Output file path (default: backup_YYYYMMDD_HHMMSS.json)")

	importInput := importCmd.String("input", "", "Input file path (required)")
	importClear := importCmd.Bool("clear", false, "Clear existing data before import (WARNING: destructive)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := config.Load()

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, cfg.MigrationsPath); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	backupService := service.NewBackupService(db)

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		handleExport(ctx, backupService, *exportOutput)

	case "import":
		importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		handleImport(ctx, backupService, *importInput, *importClear)

	default:
		printUsage()
		os.Exit(1)
	}
}

func handleExport(ctx context.Context, backupService *service.BackupService, outputPath string) {
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("backup_%s.json", timestamp)
	}

	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create output directory", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("exporting record store", "path", outputPath)
	if err := backupService.ExportToFile(ctx, outputPath); err != nil {
		slog.Error("export failed", "error", err)
		os.Exit(1)
	}

	fileInfo, _ := os.Stat(outputPath)
	slog.Info("export complete", "bytes", fileInfo.Size())
}

func handleImport(ctx context.Context, backupService *service.BackupService, inputPath string, clearData bool) {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		slog.Error("input file does not exist", "path", inputPath)
		os.Exit(1)
	}

	if clearData {
		fmt.Print("WARNING: This will delete all existing data. Type 'yes' to confirm: ")
		var confirmation string
		fmt.Scanln(&confirmation)
		if confirmation != "yes" {
			slog.Info("import cancelled")
			return
		}
	}

	slog.Info("importing record store", "path", inputPath, "clear", clearData)
	if err := backupService.ImportFromFile(ctx, inputPath, clearData); err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}

	slog.Info("import complete")
}

func printUsage() {
	fmt.Println("Savequest Record Store Backup Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  backup export [options]    Export the record store to a JSON file")
	fmt.Println("  backup import [options]    Import the record store from a JSON file")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output string   Output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Import Options:")
	fmt.Println("  -input string    Input file path (required)")
	fmt.Println("  -clear           Clear existing data before import (WARNING: destructive)")
}
