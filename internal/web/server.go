package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"photo-library-finder/internal/calendar"
	"photo-library-finder/internal/config"
	"photo-library-finder/internal/db"
	"photo-library-finder/internal/observability"
	"photo-library-finder/internal/reporter"
	"photo-library-finder/internal/scanner"
	"photo-library-finder/internal/visual"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
)

const (
	StatusIdle            = "idle"
	StatusAnalyzing       = "analyzing"
	StatusAnalyzingVisual = "analyzing_visual"
	StatusFinished        = "finished"
	StatusError           = "error"
)

var (
	ErrBusy       = errors.New("analysis already in progress")
	ErrNotScanned = errors.New("no files scanned yet")
)

// Server represents the web dashboard server
type Server struct {
	addr       string
	fs         afero.Fs
	analyzer   *visual.Analyzer
	cache      *db.Cache
	layout     *calendar.LayoutEngine
	configPath string
	debug      bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	config  *config.AppConfig
	report  *reporter.Report
	files   []scanner.ImageRecord
	months  []calendar.MonthGroup
	ignored map[string]bool
}

// NewServer creates a new web dashboard server. cache may be nil; ignored
// groups then last only as long as the server.
func NewServer(cfg *config.AppConfig, configPath string, fs afero.Fs, analyzer *visual.Analyzer, cache *db.Cache) (*Server, error) {
	layout, err := calendar.NewLayoutEngine(nil, cfg.Layout)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:       fmt.Sprintf(":%d", cfg.Port),
		fs:         fs,
		analyzer:   analyzer,
		cache:      cache,
		layout:     layout,
		configPath: configPath,
		debug:      cfg.Debug,
		ctx:        ctx,
		cancel:     cancel,
		config:     cfg,
		ignored:    make(map[string]bool),
	}, nil
}

// Load installs results computed outside the server, e.g. by the CLI.
func (s *Server) Load(files []scanner.ImageRecord, months []calendar.MonthGroup, report *reporter.Report) {
	s.layout.SetMonthGroups(months)
	s.mu.Lock()
	s.files = files
	s.months = months
	s.report = report
	s.mu.Unlock()
}

// Report returns a copy of the current report, or nil before the first scan.
func (s *Server) Report() *reporter.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil
	}
	r := *s.report
	return &r
}

// busyLocked must be called with s.mu held.
func (s *Server) busyLocked() bool {
	return s.report != nil && (s.report.Status == StatusAnalyzing || s.report.Status == StatusAnalyzingVisual)
}

// isIgnoredLocked must be called with s.mu held.
func (s *Server) isIgnoredLocked(hash string) bool {
	return s.ignored[hash] || (s.cache != nil && s.cache.IsGroupIgnored(hash))
}

// App builds the fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Photo Library Finder Dashboard",
	})

	app.Use(cors.New())

	if s.debug {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		observability.HTTPRequestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		return err
	})

	api := app.Group("/api")

	api.Post("/scan", func(c *fiber.Ctx) error {
		if err := s.beginScan(); err != nil {
			return c.Status(409).SendString(err.Error())
		}
		go s.runScan(s.ctx)
		return c.SendStatus(202)
	})

	api.Post("/run-visual", func(c *fiber.Ctx) error {
		files, opts, err := s.beginVisual()
		switch {
		case errors.Is(err, ErrNotScanned):
			return c.Status(400).SendString(err.Error())
		case err != nil:
			return c.Status(409).SendString(err.Error())
		}
		go s.runVisual(s.ctx, files, opts)
		return c.SendStatus(202)
	})

	api.Get("/report", func(c *fiber.Ctx) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.report == nil {
			return c.Status(200).JSON(fiber.Map{"status": StatusIdle})
		}

		reportCopy := *s.report
		reportCopy.VisualGroups = reporter.FilterIgnored(s.report.VisualGroups, s.isIgnoredLocked)
		reportCopy.VisualCount = len(reportCopy.VisualGroups)
		return c.Status(200).JSON(reportCopy)
	})

	api.Post("/mark-as-good", func(c *fiber.Ctx) error {
		type markRequest struct {
			Files []reporter.FileInfo `json:"files"`
		}
		var req markRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).SendString("Invalid request body")
		}
		if len(req.Files) < 2 {
			return c.Status(400).SendString("A group needs at least two files")
		}

		hash := reporter.CalculateGroupHash(req.Files)
		log.Printf("👍 Marking group as good (ignored): %s", hash)

		if s.cache != nil {
			if err := s.cache.AddIgnoredGroup(hash); err != nil {
				return c.Status(500).SendString(err.Error())
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.ignored[hash] = true
		if s.report != nil {
			s.report.VisualGroups = reporter.FilterIgnored(s.report.VisualGroups, func(h string) bool { return h == hash })
			s.report.VisualCount = len(s.report.VisualGroups)
		}
		return c.SendStatus(200)
	})

	cal := api.Group("/calendar")

	cal.Get("/", func(c *fiber.Ctx) error {
		s.mu.Lock()
		months := s.months
		s.mu.Unlock()

		resp := fiber.Map{
			"months":       reporter.SummarizeMonths(months),
			"layouts":      s.layout.Layouts(),
			"total_height": s.layout.GetTotalHeight(),
			"config":       s.layout.Config(),
		}
		if c.QueryBool("photos") {
			resp["groups"] = months
		}
		return c.JSON(resp)
	})

	cal.Get("/layout", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"config":       s.layout.Config(),
			"layouts":      s.layout.Layouts(),
			"total_height": s.layout.GetTotalHeight(),
		})
	})

	cal.Post("/layout", func(c *fiber.Ctx) error {
		var u calendar.LayoutUpdate
		if err := c.BodyParser(&u); err != nil {
			return c.Status(400).SendString("Invalid request body")
		}
		if err := s.layout.UpdateConfig(u); err != nil {
			return c.Status(400).SendString(err.Error())
		}

		cfg := s.layout.Config()
		s.mu.Lock()
		s.config.Layout = cfg
		s.mu.Unlock()
		return c.JSON(fiber.Map{
			"config":       cfg,
			"total_height": s.layout.GetTotalHeight(),
		})
	})

	cal.Get("/scroll", func(c *fiber.Ctx) error {
		if id := c.Query("id"); id != "" {
			return c.JSON(fiber.Map{"offset": s.layout.GetScrollPositionForMonth(id)})
		}
		year, month := c.QueryInt("year", -1), c.QueryInt("month", -1)
		if year < 0 || month < 0 || month > 11 {
			return c.Status(400).SendString("id or year and month (0-11) are required")
		}
		return c.JSON(fiber.Map{"offset": s.layout.GetScrollPositionForDate(year, month)})
	})

	cal.Get("/at", func(c *fiber.Ctx) error {
		g, ok := s.layout.GetMonthGroupAtScrollPosition(c.QueryInt("offset"))
		if !ok {
			return c.Status(404).SendString("No month groups")
		}
		return c.JSON(monthResponse(g, s.layout.GetScrollPositionForMonth(g.ID)))
	})

	cal.Get("/visible", func(c *fiber.Ctx) error {
		start, end := s.layout.GetVisibleRange(c.QueryInt("scroll_top"), c.QueryInt("height"))
		return c.JSON(fiber.Map{"start": start, "end": end})
	})

	cal.Get("/closest", func(c *fiber.Ctx) error {
		t, err := time.Parse(time.DateOnly, c.Query("date"))
		if err != nil {
			return c.Status(400).SendString("date must be YYYY-MM-DD")
		}
		g, ok := s.layout.FindClosestMonthGroup(t)
		if !ok {
			return c.Status(404).SendString("No dated month groups")
		}
		return c.JSON(monthResponse(g, s.layout.GetScrollPositionForMonth(g.ID)))
	})

	api.Get("/config", func(c *fiber.Ctx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return c.JSON(s.config)
	})

	api.Post("/config", func(c *fiber.Ctx) error {
		s.mu.Lock()
		cfg := *s.config
		s.mu.Unlock()

		if err := c.BodyParser(&cfg); err != nil {
			return c.Status(400).SendString(err.Error())
		}
		if err := cfg.Validate(); err != nil {
			return c.Status(400).SendString(err.Error())
		}
		if err := s.layout.UpdateConfig(fullUpdate(cfg.Layout)); err != nil {
			return c.Status(400).SendString(err.Error())
		}

		s.mu.Lock()
		s.config = &cfg
		s.mu.Unlock()

		if s.configPath != "" {
			if err := config.SaveConfigTo(&cfg, s.configPath); err != nil {
				return c.Status(500).SendString(err.Error())
			}
		}
		return c.SendStatus(200)
	})

	api.Get("/stats", func(c *fiber.Ctx) error {
		processing := s.analyzer != nil && s.analyzer.IsProcessing()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.report == nil {
			return c.Status(200).JSON(fiber.Map{
				"totalFiles":   0,
				"visualGroups": 0,
				"months":       0,
				"duration":     0,
				"processing":   processing,
			})
		}
		return c.Status(200).JSON(fiber.Map{
			"totalFiles":   s.report.TotalFiles,
			"visualGroups": len(reporter.FilterIgnored(s.report.VisualGroups, s.isIgnoredLocked)),
			"months":       len(s.report.Months),
			"duration":     s.report.AnalysisDuration,
			"processing":   processing,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(200).SendString("Photo Library Finder Dashboard API is running")
	})

	return app
}

// Start starts the web server and blocks until it stops.
func (s *Server) Start() error {
	app := s.App()
	log.Printf("🚀 Web Dashboard available at: http://localhost%s", s.addr)
	return app.Listen(s.addr)
}

// Close cancels background scans and analyses.
func (s *Server) Close() {
	s.cancel()
}

func monthResponse(g calendar.MonthGroup, offset int) fiber.Map {
	return fiber.Map{
		"id":           g.ID,
		"year":         g.Year,
		"month":        g.Month,
		"display_name": g.DisplayName,
		"count":        len(g.Photos),
		"offset":       offset,
	}
}

func fullUpdate(l calendar.LayoutConfig) calendar.LayoutUpdate {
	return calendar.LayoutUpdate{
		ContainerWidth:   &l.ContainerWidth,
		ThumbnailSize:    &l.ThumbnailSize,
		ThumbnailPadding: &l.ThumbnailPadding,
		HeaderHeight:     &l.HeaderHeight,
		GroupMargin:      &l.GroupMargin,
	}
}

// Scan walks the configured directory and rebuilds the calendar.
func (s *Server) Scan(ctx context.Context) error {
	if err := s.beginScan(); err != nil {
		return err
	}
	return s.runScan(ctx)
}

func (s *Server) beginScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLocked() {
		return ErrBusy
	}
	s.report = &reporter.Report{Status: StatusAnalyzing}
	return nil
}

func (s *Server) runScan(ctx context.Context) error {
	s.mu.Lock()
	cfg := *s.config
	s.mu.Unlock()

	log.Printf("🔍 Starting web-triggered scan: %s", cfg.Directory)
	startTime := time.Now()

	files, err := scanner.ScanDirectory(s.fs, cfg.Directory, scanner.ScanOptions{
		Recursive:       cfg.Recursive,
		IncludeArchives: cfg.IncludeArchives,
		Debug:           cfg.Debug,
	})
	if err != nil {
		return s.fail(fmt.Errorf("scan %s: %w", cfg.Directory, err))
	}

	months, err := calendar.GroupPhotosChunked(ctx, files)
	if err != nil {
		return s.fail(fmt.Errorf("group by month: %w", err))
	}
	s.layout.SetMonthGroups(months)

	report := reporter.NewReport(files, months)
	report.AnalysisDuration = time.Since(startTime).Seconds()

	s.mu.Lock()
	s.files = files
	s.months = months
	s.report = &report
	s.mu.Unlock()

	log.Printf("✅ Scan completed. Found %d files in %d months.", len(files), len(months))
	return nil
}

// RunVisual hashes the scanned files and groups similar ones.
func (s *Server) RunVisual(ctx context.Context) error {
	files, opts, err := s.beginVisual()
	if err != nil {
		return err
	}
	return s.runVisual(ctx, files, opts)
}

func (s *Server) beginVisual() ([]scanner.ImageRecord, visual.Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil || s.report.Status == StatusError {
		return nil, visual.Options{}, ErrNotScanned
	}
	if s.busyLocked() || (s.analyzer != nil && s.analyzer.IsProcessing()) {
		return nil, visual.Options{}, ErrBusy
	}
	s.report.Status = StatusAnalyzingVisual
	s.report.Progress = 0
	opts := visual.Options{Threshold: s.config.Threshold, BatchSize: s.config.BatchSize}
	return s.files, opts, nil
}

func (s *Server) runVisual(ctx context.Context, files []scanner.ImageRecord, opts visual.Options) error {
	log.Printf("🎨 Web-triggered Visual analysis started...")

	onProgress := func(u visual.ProgressUpdate) {
		s.mu.Lock()
		s.report.Phase = string(u.Phase)
		s.report.Progress = u.Progress
		s.mu.Unlock()
	}

	result, err := s.analyzer.Analyze(ctx, files, opts, onProgress)
	if err != nil {
		return s.fail(fmt.Errorf("visual analysis: %w", err))
	}

	s.mu.Lock()
	s.report.ApplyVisual(result, files)
	s.report.VisualGroups = reporter.FilterIgnored(s.report.VisualGroups, s.isIgnoredLocked)
	s.report.VisualCount = len(s.report.VisualGroups)
	s.report.Phase = ""
	s.report.Progress = 100
	s.report.Status = StatusFinished
	s.mu.Unlock()

	log.Printf("✅ Visual analysis finished. Found %d groups.", len(result.Groups))
	return nil
}

func (s *Server) fail(err error) error {
	log.Printf("❌ %v", err)
	s.mu.Lock()
	if s.report == nil {
		s.report = &reporter.Report{}
	}
	s.report.Status = StatusError
	s.mu.Unlock()
	return err
}
