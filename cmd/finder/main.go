package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"photo-library-finder/internal/calendar"
	"photo-library-finder/internal/config"
	"photo-library-finder/internal/db"
	"photo-library-finder/internal/phash"
	"photo-library-finder/internal/reporter"
	"photo-library-finder/internal/scanner"
	"photo-library-finder/internal/visual"
	"photo-library-finder/internal/web"

	"github.com/spf13/afero"
)

const Version = "1.0.0"

type Flags struct {
	ConfigPath string
	Directory  string
	Mode       string // "all", "visual" or "calendar"
	Threshold  float64
	OutputFile string
	PDFFile    string
	Web        bool
	Port       int
	Debug      bool
	NoCache    bool
	Version    bool
}

func main() {
	flags := parseFlags()
	if flags.Version {
		fmt.Printf("Photo Library Finder v%s\n", Version)
		return
	}

	log.SetFlags(log.Ldate | log.Ltime)

	cfg, err := config.LoadConfigFrom(flags.ConfigPath)
	if err != nil {
		if cfg == nil {
			log.Fatalf("❌ Invalid configuration: %v", err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("⚠️  Could not read configuration, using defaults: %v", err)
		}
	}
	applyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	if _, err := os.Stat(cfg.Directory); os.IsNotExist(err) {
		log.Fatalf("❌ Directory does not exist: %s", cfg.Directory)
	}

	hashType, _ := phash.ParseHashType(cfg.HashType)

	log.Printf("📷 Photo Library Finder")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	log.Printf("📂 Scanning directory: %s", cfg.Directory)
	log.Printf("🎯 Similarity threshold: %.0f%%", cfg.Threshold)
	log.Printf("🔧 Mode: %s (hash: %s)", flags.Mode, hashType)
	if cfg.Debug {
		log.Printf("🐛 DEBUG MODE: Enabled (Detailed Tracing)")
	}
	fmt.Printf("\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := afero.NewOsFs()
	startTime := time.Now()

	log.Println("📦 Step 1: Scanning for photos...")
	files, err := scanner.ScanDirectory(fs, cfg.Directory, scanner.ScanOptions{
		Recursive:       cfg.Recursive,
		IncludeArchives: cfg.IncludeArchives,
		Debug:           cfg.Debug,
	})
	if err != nil {
		log.Fatalf("❌ Failed to scan directory: %v", err)
	}
	log.Printf("✅ Found %d media files", len(files))
	scanner.PrintFileStats(files)
	fmt.Println()

	var months []calendar.MonthGroup
	if flags.Mode == "all" || flags.Mode == "calendar" {
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("📅 Step 2: Grouping photos by month...")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		months, err = calendar.GroupPhotosChunked(ctx, files)
		if err != nil {
			log.Fatalf("❌ Month grouping failed: %v", err)
		}
		for _, m := range months {
			fmt.Printf("  • %-16s %d photos\n", m.DisplayName, len(m.Photos))
		}
		fmt.Println()
	}

	report := reporter.NewReport(files, months)
	report.AnalysisDuration = time.Since(startTime).Seconds()

	var cache *db.Cache
	if !flags.NoCache {
		cache, err = db.NewCache(cfg.CachePath, cfg.LRUSize)
		if err != nil {
			log.Printf("⚠️  Could not initialize cache: %v", err)
		} else {
			cache.Debug = cfg.Debug
			defer cache.Close()
		}
	}

	worker := visual.NewWorker(fs, visual.WorkerOptions{
		HashType:    hashType,
		ItemTimeout: cfg.ItemTimeout(),
		Debug:       cfg.Debug,
	})
	var analyzer *visual.Analyzer
	if cache != nil {
		analyzer = visual.NewAnalyzer(worker, cache)
	} else {
		analyzer = visual.NewAnalyzer(worker, nil)
	}
	analyzer.Debug = cfg.Debug
	defer analyzer.Close()

	if flags.Mode == "all" || flags.Mode == "visual" {
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("🎨 Step 3: Visual similarity analysis...")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		onProgress := func(u visual.ProgressUpdate) {
			fmt.Printf("\r⏳ %-10s [%-20s] %.1f%%", u.Phase, strings.Repeat("=", int(u.Progress/5)), u.Progress)
		}
		result, err := analyzer.Analyze(ctx, files, visual.Options{
			Threshold: cfg.Threshold,
			BatchSize: cfg.BatchSize,
		}, onProgress)
		fmt.Println()
		if err != nil {
			log.Fatalf("❌ Visual analysis failed: %v", err)
		}
		report.ApplyVisual(result, files)
		if cache != nil {
			report.VisualGroups = reporter.FilterIgnored(report.VisualGroups, cache.IsGroupIgnored)
			report.VisualCount = len(report.VisualGroups)
		}
		log.Printf("✅ Found %d groups of similar photos", report.VisualCount)
		fmt.Println()
	}

	reporter.PrintSummary(report)

	if flags.OutputFile != "" {
		if err := reporter.ExportJSON(report, flags.OutputFile); err != nil {
			log.Printf("❌ Failed to export JSON: %v", err)
		} else {
			log.Printf("💾 Report saved to: %s", flags.OutputFile)
		}
	}
	if flags.PDFFile != "" {
		if err := reporter.ExportPDF(report, flags.PDFFile); err != nil {
			log.Printf("❌ Failed to export PDF: %v", err)
		} else {
			log.Printf("📄 PDF report saved to: %s", flags.PDFFile)
		}
	}

	if flags.Web {
		srv, err := web.NewServer(cfg, flags.ConfigPath, fs, analyzer, cache)
		if err != nil {
			log.Fatalf("❌ Could not start dashboard: %v", err)
		}
		defer srv.Close()
		srv.Load(files, months, &report)

		go func() {
			<-ctx.Done()
			log.Printf("👋 Shutting down")
			srv.Close()
			os.Exit(0)
		}()
		if err := srv.Start(); err != nil {
			log.Fatalf("❌ Web server failed: %v", err)
		}
	}
}

func parseFlags() Flags {
	var flags Flags

	flag.StringVar(&flags.ConfigPath, "config", config.GetConfigPath(), "Settings file (.json, .yaml or .yml)")
	flag.StringVar(&flags.Directory, "dir", "", "Photo library directory (overrides config)")
	flag.StringVar(&flags.Mode, "mode", "all", "Analysis mode: 'all', 'visual' or 'calendar'")
	flag.Float64Var(&flags.Threshold, "threshold", -1, "Similarity threshold percentage (0-100, overrides config)")
	flag.StringVar(&flags.OutputFile, "json", "", "Output JSON file path")
	flag.StringVar(&flags.PDFFile, "pdf", "", "Output PDF report path")
	flag.BoolVar(&flags.Web, "web", false, "Start web dashboard after analysis")
	flag.IntVar(&flags.Port, "port", 0, "Web server port (overrides config)")
	flag.BoolVar(&flags.Debug, "debug", false, "Enable detailed debug logging for troubleshooting")
	flag.BoolVar(&flags.NoCache, "no-cache", false, "Do not read or write the hash cache")
	flag.BoolVar(&flags.Version, "version", false, "Show version information and exit")

	flag.Parse()

	switch flags.Mode {
	case "all", "visual", "calendar":
	default:
		log.Fatalf("❌ Unknown mode %q (want all, visual or calendar)", flags.Mode)
	}
	return flags
}

// applyFlags lets explicitly set flags win over the settings file.
func applyFlags(cfg *config.AppConfig, flags Flags) {
	if flags.Directory != "" {
		cfg.Directory = flags.Directory
	}
	if cfg.Directory == "" {
		cfg.Directory = "."
	}
	if flags.Threshold >= 0 {
		cfg.Threshold = flags.Threshold
	}
	if flags.Port > 0 {
		cfg.Port = flags.Port
	}
	if flags.Debug {
		cfg.Debug = true
	}
}
