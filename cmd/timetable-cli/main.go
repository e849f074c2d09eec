// Command timetable-cli builds a weekly timetable from classes.csv, courses.csv and
// faculty.csv and writes it as a PDF (or csv, xlsx or json) document.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/importer"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	"github.com/noah-isme/sma-timetable/internal/service"
	"github.com/noah-isme/sma-timetable/pkg/config"
	"github.com/noah-isme/sma-timetable/pkg/export"
	"github.com/noah-isme/sma-timetable/pkg/logger"
)

const (
	exitComplete = 0
	exitError    = 1
	exitPartial  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cliOptions struct {
	classes    string
	courses    string
	faculty    string
	constraint string
	output     string
	format     string
	tokenRole  string
	tokenOwner string
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("timetable-cli", pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var opts cliOptions
	flags.StringVar(&opts.classes, "classes", "classes.csv", "classes file (class_id, courses)")
	flags.StringVar(&opts.courses, "courses", "courses.csv", "courses file (course_id, course_name, lectures_per_week)")
	flags.StringVar(&opts.faculty, "faculty", "faculty.csv", "faculty file (faculty_id, faculty_name, courses)")
	flags.StringVar(&opts.constraint, "constraints", "", "optional JSON file of pre-assigned sessions and instructor unavailability")
	flags.StringVarP(&opts.output, "output", "o", "", "output file (default timetable.<format>)")
	flags.StringVarP(&opts.format, "format", "f", "pdf", "output format: pdf, csv, xlsx or json")
	flags.StringVar(&opts.tokenRole, "issue-token-role", "", "print an API access token for this role and exit")
	flags.StringVar(&opts.tokenOwner, "issue-token-subject", "cli", "subject of the issued token")

	flags.String("days", "", "comma separated day labels")
	flags.String("slots", "", "comma separated slot labels, break included")
	flags.String("break-slot", "", "slot label that is never assigned")
	flags.Int("max-retries", 0, "cell draws allowed per session")
	flags.String("on-unschedulable", "", "abort or skip_and_record")
	flags.String("candidate-order", "", "by_id or shuffled")
	flags.String("seed", "", "random seed for a reproducible run")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or console")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitComplete
		}
		return exitError
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}
	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return exitError
	}
	defer logr.Sync() //nolint:errcheck

	if opts.tokenRole != "" {
		return issueToken(cfg, opts, logr, stdout, stderr)
	}

	format := strings.ToLower(opts.format)
	if format != "json" && !models.ExportFormat(format).Valid() {
		fmt.Fprintf(stderr, "unsupported format %q\n", opts.format)
		return exitError
	}
	if opts.output == "" {
		opts.output = "timetable." + format
	}

	catalog, err := loadCatalog(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	engineOpts := engineOptions(cfg.Scheduler, logr)
	if opts.constraint != "" {
		constraints, err := readConstraints(opts.constraint)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		engineOpts.Preassigned = constraints.Preassigned
		engineOpts.Unavailable = constraints.Unavailable
	}

	engine, err := scheduler.NewEngine(catalog, engineOpts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	result, err := engine.Run()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	view := service.NewTimetableView(catalog, result.Schedule, result.Unplaced)
	view.Seed = result.Seed
	view.Stats = &dto.TimetableStats{
		Required:    result.Stats.Required,
		Preassigned: result.Stats.Preassigned,
		Placed:      result.Stats.Placed,
		Unplaced:    result.Stats.Unplaced,
		Attempts:    result.Stats.Attempts,
	}

	payload, err := render(view, format)
	if err != nil {
		fmt.Fprintf(stderr, "render %s: %v\n", format, err)
		return exitError
	}
	if err := os.WriteFile(opts.output, payload, 0o644); err != nil {
		fmt.Fprintf(stderr, "write %s: %v\n", opts.output, err)
		return exitError
	}

	printSummary(stdout, opts.output, view)
	if !result.Complete() {
		return exitPartial
	}
	return exitComplete
}

func issueToken(cfg *config.Config, opts cliOptions, logr *zap.Logger, stdout, stderr io.Writer) int {
	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	token, expiresAt, err := auth.IssueToken(opts.tokenOwner, models.UserRole(strings.ToUpper(opts.tokenRole)))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	fmt.Fprintln(stdout, token)
	logr.Sugar().Infow("access token issued", "subject", opts.tokenOwner, "expires_at", expiresAt)
	return exitComplete
}

func loadCatalog(opts cliOptions) (*scheduler.Catalog, error) {
	classes, err := readFile(opts.classes, importer.LoadClasses)
	if err != nil {
		return nil, err
	}
	courses, err := readFile(opts.courses, importer.LoadCourses)
	if err != nil {
		return nil, err
	}
	instructors, err := readFile(opts.faculty, importer.LoadInstructors)
	if err != nil {
		return nil, err
	}
	return scheduler.NewCatalog(classes, courses, instructors)
}

func readFile[T any](path string, load func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return load(f)
}

func readConstraints(path string) (importer.Constraints, error) {
	f, err := os.Open(path)
	if err != nil {
		return importer.Constraints{}, err
	}
	defer f.Close() //nolint:errcheck
	return importer.LoadConstraints(f)
}

func engineOptions(cfg config.SchedulerConfig, logr *zap.Logger) scheduler.Options {
	return scheduler.Options{
		Grid: scheduler.Grid{
			Days:      cfg.Days,
			Slots:     cfg.Slots,
			BreakSlot: cfg.BreakSlot,
		},
		MaxRetriesPerSession: cfg.MaxRetries,
		OnUnschedulable:      scheduler.UnschedulablePolicy(cfg.OnUnschedulable),
		CandidateOrder:       scheduler.CandidateOrder(cfg.CandidateOrder),
		Seed:                 cfg.RandomSeed,
		Logger:               logr,
	}
}

func render(view dto.TimetableView, format string) ([]byte, error) {
	var renderer export.Renderer
	switch models.ExportFormat(format) {
	case models.ExportFormatCSV:
		renderer = export.NewCSVExporter()
	case models.ExportFormatXLSX:
		renderer = export.NewXLSXExporter()
	case models.ExportFormatPDF:
		renderer = export.NewPDFExporter()
	default:
		return json.MarshalIndent(view, "", "  ")
	}
	return renderer.RenderTimetable(view)
}

func printSummary(w io.Writer, output string, view dto.TimetableView) {
	fmt.Fprintf(w, "Timetable written to %s (%d classes)\n", output, len(view.Classes))
	if view.Seed != nil {
		fmt.Fprintf(w, "Seed: %d\n", *view.Seed)
	}
	if len(view.Unplaced) == 0 {
		fmt.Fprintln(w, "All sessions placed.")
		return
	}
	fmt.Fprintf(w, "%d sessions could not be placed:\n", len(view.Unplaced))
	for _, u := range view.Unplaced {
		fmt.Fprintf(w, "  class %s course %s session %d: %s (%d attempts)\n", u.ClassID, u.CourseID, u.Session, u.Reason, u.Attempts)
	}
}
