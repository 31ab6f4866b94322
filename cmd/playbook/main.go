package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cwoolley/playbook/internal/aggregate"
	"github.com/cwoolley/playbook/internal/analytics"
	"github.com/cwoolley/playbook/internal/api"
	"github.com/cwoolley/playbook/internal/auth"
	"github.com/cwoolley/playbook/internal/cache"
	"github.com/cwoolley/playbook/internal/config"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/extract"
	"github.com/cwoolley/playbook/internal/logger"
	"github.com/cwoolley/playbook/internal/metrics"
	"github.com/cwoolley/playbook/internal/retry"
	"github.com/cwoolley/playbook/internal/search"
	"github.com/cwoolley/playbook/internal/server"
	"github.com/cwoolley/playbook/internal/tui"
	"github.com/cwoolley/playbook/internal/web"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

type httpServer interface {
	Serve() error
	Addr() string
	Shutdown(ctx context.Context) error
}

type teaRunner interface {
	Run() (tea.Model, error)
}

var (
	makeSignalCh = func() (chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		return ch, func() { signal.Stop(ch) }
	}
	newTeaProgram = func(m tea.Model) teaRunner {
		return tea.NewProgram(m, tea.WithAltScreen())
	}
)

type filterFlags struct {
	folder   string
	selected string
	fileType string
	name     string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.folder, "folder", "", "search this folder and its subfolders")
	cmd.Flags().StringVar(&f.selected, "selected", "", "search only this folder")
	cmd.Flags().StringVar(&f.fileType, "type", "", "documents or spreadsheets")
	cmd.Flags().StringVar(&f.name, "name", "", "enquiry or po")
}

func (f *filterFlags) request(q string) search.Request {
	return search.Request{
		Query:          q,
		FolderID:       f.folder,
		SelectedFolder: f.selected,
		FileType:       f.fileType,
		NameFilter:     f.name,
	}
}

func newRootCmd(open Opener, out io.Writer) *cobra.Command {
	var serverURL string
	root := &cobra.Command{
		Use:           "playbook",
		Short:         "Search the document store and aggregate matching files into reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "", "use a running playbook server instead of Drive directly")

	var searchFlags filterFlags
	searchCmd := &cobra.Command{
		Use:   "search [terms...]",
		Short: "Search for files matching comma separated terms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), serverURL)
			if err != nil {
				return err
			}
			res, err := b.Search(cmd.Context(), searchFlags.request(strings.Join(args, " ")))
			if err != nil {
				return err
			}
			printFiles(out, res)
			return nil
		},
	}
	searchFlags.register(searchCmd)

	var (
		aggFlags filterFlags
		outDir   string
	)
	aggregateCmd := &cobra.Command{
		Use:   "aggregate [terms...]",
		Short: "Search, then merge every match into Word reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), serverURL)
			if err != nil {
				return err
			}
			q := strings.Join(args, " ")
			res, err := b.Search(cmd.Context(), aggFlags.request(q))
			if err != nil {
				return err
			}
			if len(res.Files) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			fmt.Fprintf(out, "Aggregating %d files...\n", len(res.Files))
			paths, err := aggregateAndSave(cmd.Context(), b, q, res.Files, outDir, out)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(out, "Saved %s\n", p)
			}
			return nil
		},
	}
	aggFlags.register(aggregateCmd)
	aggregateCmd.Flags().StringVar(&outDir, "out", ".", "directory for the generated reports")

	var (
		mimeType string
		trim     bool
	)
	extractCmd := &cobra.Command{
		Use:   "extract <path>",
		Short: "Print the text of a local document",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			text, err := extractFile(args[0], mimeType)
			if err != nil {
				return err
			}
			if trim {
				text = extract.TrimHeader(text, extract.DefaultTrimMarker, extract.DefaultTrimMaxLines)
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}
	extractCmd.Flags().StringVar(&mimeType, "mime", "", "mime type; guessed from the extension when empty")
	extractCmd.Flags().BoolVar(&trim, "trim", false, "keep only the header up to the reference line")

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("addr") || cfg.ServerAddr == "" {
				cfg.ServerAddr = addr
			}
			log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			srv := buildServer(ctx, cfg, log)
			if err := srv.Listen(); err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.ServerAddr, err)
			}
			return serveLoop(srv, out)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	var interactiveOut string
	interactiveCmd := &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"tui"},
		Short:   "Search and aggregate in a terminal UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := open(cmd.Context(), serverURL)
			if err != nil {
				return err
			}
			searchFn := func(ctx context.Context, q string) ([]domain.FileRecord, error) {
				res, err := b.Search(ctx, search.Request{Query: q})
				return res.Files, err
			}
			aggregateFn := func(ctx context.Context, q string, files []domain.FileRecord) ([]string, error) {
				return aggregateAndSave(ctx, b, q, files, interactiveOut, io.Discard)
			}
			_, err = newTeaProgram(tui.NewModel(searchFn, aggregateFn)).Run()
			return err
		},
	}
	interactiveCmd.Flags().StringVar(&interactiveOut, "out", ".", "directory for the generated reports")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(out, "playbook version %s\n", version)
		},
	}

	root.AddCommand(searchCmd, aggregateCmd, extractCmd, serveCmd, interactiveCmd, versionCmd)
	return root
}

func printFiles(out io.Writer, res search.Result) {
	if len(res.Files) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}
	for i, f := range res.Files {
		fmt.Fprintf(out, "%d. %s\n   %s · modified %s\n   id: %s\n\n",
			i+1, f.Name, f.Kind(), f.ModifiedTime.Format("2006-01-02"), f.ID)
	}
	fmt.Fprintf(out, "%d files", res.Total)
	if res.Truncated {
		fmt.Fprint(out, " (truncated; narrow the search)")
	}
	fmt.Fprintln(out)
}

// aggregateAndSave runs a job and writes its artifacts into dir.
func aggregateAndSave(ctx context.Context, b Backend, q string, files []domain.FileRecord, dir string, out io.Writer) ([]string, error) {
	job, err := b.Aggregate(ctx, q, files)
	for _, f := range job.Failures {
		fmt.Fprintf(out, "Failed: %s: %s\n", f.FileName, f.Reason)
	}
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	paths := make([]string, 0, len(job.Artifacts))
	for _, a := range job.Artifacts {
		p := filepath.Join(dir, filepath.Base(a.Name))
		if err := os.WriteFile(p, a.Data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func extractFile(path, mimeType string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if st.Size() > extract.DefaultMaxFileBytes {
		return "", domain.ErrFileTooLarge
	}
	kind := domain.KindOf(mimeType, path)
	if kind.IsSpreadsheet() || kind == domain.KindUnsupported {
		return "", domain.NewValidation("mime", fmt.Sprintf("cannot extract text from %s files", kind))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return extract.ExtractBytes(kind, data)
}

func buildServer(ctx context.Context, cfg *config.Config, log *zap.Logger) *server.Server {
	rec := metrics.Recorder{}
	searchSvc := search.New(
		cache.New(cfg.CacheTTL, cfg.CacheCapacity, cache.WithRecorder(rec)),
		analytics.NewTracker(analytics.DefaultHistory),
		log,
		search.WithRecorder(rec),
	)
	jobs := aggregate.NewService(log, cfg.BatchSize, extract.Options{
		MaxFileBytes: cfg.MaxFileBytes,
		TrimMarker:   cfg.TrimMarker,
		TrimMaxLines: cfg.TrimMaxLines,
	}, aggregate.WithRecorder(rec), aggregate.WithExtractorOptions(extract.WithRecorder(rec)))

	h := api.New(ctx, api.Options{
		RootFolderID: cfg.RootFolderID,
		Allowed:      cfg.EmailAllowed,
		BatchSize:    cfg.BatchSize,
		MaxFileBytes: cfg.MaxFileBytes,
		TrimMarker:   cfg.TrimMarker,
		TrimMaxLines: cfg.TrimMaxLines,
	}, api.Deps{
		Providers: api.DriveProviders(cfg.TeamDriveID, retry.DefaultPolicy),
		Refresher: auth.NewGoogleRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret),
		Search:    searchSvc,
		Jobs:      jobs,
		Registry:  aggregate.NewRegistry(cfg.JobRetention),
	})

	srv := server.New(cfg.ServerAddr, log)
	srv.Mount("/api", h.Routes())
	srv.Mount("/", web.Handler())
	return srv
}

// serveLoop serves until the server fails or a shutdown signal arrives.
func serveLoop(srv httpServer, out io.Writer) error {
	sigCh, stop := makeSignalCh()
	defer stop()

	fmt.Fprintf(out, "Listening on %s\n", srv.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		fmt.Fprintf(out, "Received %s, shutting down...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func runWithOutput(args []string, open Opener, out io.Writer) error {
	cmd := newRootCmd(open, out)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd.Execute()
}

func run(args []string, open Opener) error {
	return runWithOutput(args, open, os.Stdout)
}

func main() {
	if err := run(os.Args[1:], openBackend); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
