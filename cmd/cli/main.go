// Command sessionview browses Claude session logs as conversation trees.
//
// Usage:
//
//	sessionview serve                      # serve ~/.claude over HTTP
//	sessionview projects                   # list projects via the API
//	sessionview tree -p <project> -s <id>  # print a session tree
//	sessionview view -p <project> --local  # browse sessions in the terminal
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mariozechner/coding-agent/sessionview/pkg/client"
	"github.com/mariozechner/coding-agent/sessionview/pkg/config"
	"github.com/mariozechner/coding-agent/sessionview/pkg/loader"
	"github.com/mariozechner/coding-agent/sessionview/pkg/logging"
	"github.com/mariozechner/coding-agent/sessionview/pkg/server"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store/jsonl"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagConfig   string
	flagAPIURL   string
	flagLocal    bool
	flagLogLevel string
	flagMaxDepth int

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:          "sessionview",
	Short:        "Reconstruct Claude session logs into conversation trees",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagAPIURL != "" {
			cfg.APIURL = flagAPIURL
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		if flagMaxDepth > 0 {
			cfg.MaxDepth = flagMaxDepth
		}
		logging.Init(cfg.LogJSON, logging.ParseLevel(cfg.LogLevel))
		return nil
	},
}

// backend is where logs come from: the local claude directory or the API.
type backend struct {
	browser store.Browser
	loader  store.Loader
	manager *jsonl.Manager
	client  *client.Client
}

func newBackend() backend {
	if flagLocal {
		m := jsonl.NewManager(cfg.ClaudeDir)
		return backend{browser: m, loader: m, manager: m}
	}
	c := client.New(cfg.APIURL, client.WithTimeout(cfg.Timeout))
	return backend{browser: c, loader: c, client: c}
}

func (b backend) treeLoader() *loader.Loader {
	return loader.New(b.loader, loader.Options{MaxDepth: cfg.MaxDepth})
}

// watcher polls the session file when reading locally. Remote views reload on demand.
func (b backend) watcher() watchFunc {
	if b.manager == nil {
		return nil
	}
	return func(ctx context.Context, sessionID string) (<-chan time.Time, error) {
		path, err := b.manager.SessionFile(viewProject, sessionID)
		if err != nil {
			return nil, err
		}
		return jsonl.Watch(ctx, path, cfg.WatchInterval), nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- serve ---

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve session logs over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(jsonl.NewManager(cfg.ClaudeDir), server.Options{
		MaxDepth:      cfg.MaxDepth,
		WatchInterval: cfg.WatchInterval,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// --- projects ---

var projectsJSON bool

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runProjects,
}

func runProjects(cmd *cobra.Command, args []string) error {
	projects, err := newBackend().browser.ListProjects(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if projectsJSON {
		return writeJSON(out, projects)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tSESSIONS\tMODIFIED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", p.Name, p.SessionCount, p.LastModified.Format(time.RFC822))
	}
	return tw.Flush()
}

// --- sessions ---

var (
	sessionsProject string
	sessionsLimit   int
	sessionsJSON    bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions of a project",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	sessions, err := newBackend().browser.ListSessions(cmd.Context(), sessionsProject, sessionsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if sessionsJSON {
		return writeJSON(out, sessions)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tMODIFIED\tAGENTS\tPROMPT")
	for _, s := range sessions {
		agents := ""
		if s.HasSubAgents {
			agents = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.SessionID, s.Timestamp.Format(time.RFC822), agents, firstLine(s.FirstPrompt, 60))
	}
	return tw.Flush()
}

// --- tree ---

var (
	treeProject    string
	treeSession    string
	treeJSON       bool
	treeServerSide bool
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Reconstruct a session and print its tree",
	Args:  cobra.NoArgs,
	RunE:  runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	b := newBackend()

	var (
		res *loader.Result
		err error
	)
	if treeServerSide && b.client != nil {
		res, err = b.client.Tree(cmd.Context(), treeProject, treeSession)
	} else {
		res, err = b.treeLoader().Load(cmd.Context(), treeProject, treeSession)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if treeJSON {
		return writeJSON(out, res)
	}
	renderText(out, res)
	return nil
}

// --- view ---

var (
	viewProject string
	viewSession string
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse a project's sessions interactively",
	Args:  cobra.NoArgs,
	RunE:  runView,
}

func runView(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	b := newBackend()
	m := initialModel(ctx, b.browser, b.treeLoader(), b.watcher(), viewProject, viewSession)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("viewer: %w", err)
	}
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sessionview %s (build: %s)\n", version, commit)
	},
}

func init() {
	// global flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file (default $SESSIONVIEW_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API server to read from (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagLocal, "local", false, "Read the claude directory directly instead of the API")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().IntVar(&flagMaxDepth, "max-depth", 0, "Maximum sub-agent nesting depth (overrides config)")

	// serve flags
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")

	// projects flags
	projectsCmd.Flags().BoolVar(&projectsJSON, "json", false, "Print JSON")

	// sessions flags
	sessionsCmd.Flags().StringVarP(&sessionsProject, "project", "p", "", "Project name or path")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", jsonl.DefaultSessionLimit, "Maximum sessions to list")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Print JSON")
	sessionsCmd.MarkFlagRequired("project")

	// tree flags
	treeCmd.Flags().StringVarP(&treeProject, "project", "p", "", "Project name or path")
	treeCmd.Flags().StringVarP(&treeSession, "session", "s", "", "Session ID")
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Print the tree and load report as JSON")
	treeCmd.Flags().BoolVar(&treeServerSide, "server-side", false, "Let the API server reconstruct the tree")
	treeCmd.MarkFlagRequired("project")
	treeCmd.MarkFlagRequired("session")

	// view flags
	viewCmd.Flags().StringVarP(&viewProject, "project", "p", "", "Project name or path")
	viewCmd.Flags().StringVarP(&viewSession, "session", "s", "", "Open this session directly")
	viewCmd.MarkFlagRequired("project")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(versionCmd)
}
