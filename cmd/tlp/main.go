package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tuleapsync/internal/app"
	"tuleapsync/internal/config"
	"tuleapsync/internal/connector"
	"tuleapsync/internal/db"
	"tuleapsync/internal/domain"
	"tuleapsync/internal/engine"
	"tuleapsync/internal/repo"
	"tuleapsync/internal/server"
	"tuleapsync/internal/taskdata"
)

var rootCmd = &cobra.Command{
	Use:   "tlp",
	Short: "Tuleap task sync CLI",
	Long: `tlp reads and publishes Tuleap artifacts as generic tasks and keeps a local cache of them.
- Workspace: the directory holding tuleap.yml and the .tuleap cache.
- Repository: the Tuleap server configured in tuleap.yml; the password comes from TULEAP_PASSWORD.
- Task id: project:tracker#artifact, for example 101:1001#2.
- Queries: saved in tuleap.yml as REPORT, CUSTOM or TOP_LEVEL_PLANNING; 'tlp query run' caches their results.
- Event log: every sync run, view with 'tlp log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TULEAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "log requests and skipped results")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(repoCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(trackerCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(mockCmd())
}

func logger() *log.Logger {
	if viper.GetBool("verbose") {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage tuleap.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var url, username string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tuleap.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return fmt.Errorf("--url required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			raw := config.GenerateDefault(url, username)
			if _, err := config.FromYAML([]byte(raw)); err != nil {
				return err
			}
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "repository url, for example https://tuleap.example.com")
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func repoCmd() *cobra.Command {
	r := &cobra.Command{Use: "repo", Short: "Repository connection"}
	r.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Log in and read one project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Client.Validate(ctx); err != nil {
					return err
				}
				fmt.Printf("Connected to %s\n", a.Config.APIURL())
				return nil
			})
		},
	})
	return r
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Browse projects"}
	prj.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				projects, err := a.Client.Projects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				tw := newTable("ID", "Short name", "Label", "Trackers")
				for _, p := range projects {
					tw.AppendRow(table.Row{p.ID, p.ShortName, p.Label, p.HasResource(domain.ResourceTrackers)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return prj
}

func trackerCmd() *cobra.Command {
	tr := &cobra.Command{Use: "tracker", Short: "Browse trackers"}
	var projectID int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the trackers of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID <= 0 {
				return fmt.Errorf("--project required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				trackers, err := a.Client.ProjectTrackers(ctx, projectID)
				if err != nil {
					return err
				}
				tw := newTable("ID", "Label", "Item", "Fields", "Parent")
				for _, t := range trackers {
					parent := ""
					if t.ParentID > 0 {
						parent = strconv.Itoa(t.ParentID)
					}
					tw.AppendRow(table.Row{t.ID, t.Label, t.ItemName, len(t.Fields()), parent})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().IntVar(&projectID, "project", 0, "project id")
	tr.AddCommand(list)
	return tr
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Read and publish tasks"}
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskNewCmd())
	task.AddCommand(taskPostCmd())
	task.AddCommand(taskImportCmd())
	return task
}

// resolveTaskID accepts a task id or the web url of an artifact.
func resolveTaskID(arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		id, err := connector.TaskIDFromURL(arg)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}
	id, err := domain.ParseTaskID(arg)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id|url>",
		Short: "Fetch a task from the server and cache it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveTaskID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.LoadUsers(ctx); err != nil {
					return err
				}
				td, err := a.Engine.SyncTask(ctx, id)
				if err != nil {
					return err
				}
				return printTask(td)
			})
		},
	}
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a cached task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveTaskID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cached, err := a.Engine.Repo.GetTaskData(ctx, a.Config.Repository.URL, id)
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("task %s is not cached; fetch it with tlp task get %s", id, id)
				}
				if err != nil {
					return err
				}
				return printTask(cached.Data)
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				tasks, err := a.Engine.Repo.ListTaskData(ctx, repo.TaskFilters{RepositoryURL: a.Config.Repository.URL, Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable("Task", "Summary", "Status", "Modified", "Synced")
				for _, t := range tasks {
					modified := ""
					if !t.Modified.IsZero() {
						modified = t.Modified.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{t.TaskID, t.Summary, t.Status, modified, t.SyncedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status label")
	cmd.Flags().IntVar(&limit, "limit", 0, "max tasks")
	return cmd
}

type taskEdits struct {
	summary  string
	status   string
	assignee string
	comment  string
	set      []string
}

func (e *taskEdits) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&e.summary, "summary", "", "summary")
	cmd.Flags().StringVar(&e.status, "status", "", "status label or id")
	cmd.Flags().StringVar(&e.assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&e.comment, "comment", "", "comment added with the change")
	cmd.Flags().StringArrayVar(&e.set, "set", nil, "field value as <field-id>=<value>; separate several values with commas")
}

func (e *taskEdits) apply(td *taskdata.TaskData) error {
	if e.summary != "" {
		setExisting(td, taskdata.Summary).SetValue(e.summary)
	}
	if e.assignee != "" {
		setExisting(td, taskdata.UserAssigned).SetValue(e.assignee)
	}
	if e.status != "" {
		op, ok := td.Attribute(taskdata.PrefixOperation + taskdata.Status)
		if !ok {
			return fmt.Errorf("task %s has no status", td.TaskID)
		}
		key, ok := optionKey(op, e.status)
		if !ok {
			var allowed []string
			for _, o := range op.Options() {
				allowed = append(allowed, o.Label)
			}
			return fmt.Errorf("status %q not reachable; allowed: %s", e.status, strings.Join(allowed, ", "))
		}
		op.SetValue(key)
	}
	for _, kv := range e.set {
		id, value, ok := strings.Cut(kv, "=")
		if !ok || id == "" {
			return fmt.Errorf("--set %q: expected <field-id>=<value>", kv)
		}
		attr, ok := td.Attribute(id)
		if !ok {
			return fmt.Errorf("--set %q: task has no attribute %s", kv, id)
		}
		if attr.Meta.ReadOnly {
			return fmt.Errorf("--set %q: attribute %s is read-only", kv, id)
		}
		if attr.Meta.Type == taskdata.TypeMultiSelect {
			attr.SetValues(strings.Split(value, ","))
		} else {
			attr.SetValue(value)
		}
	}
	if e.comment != "" {
		td.CreateAttribute(taskdata.CommentNew).SetValue(e.comment)
	}
	return nil
}

func setExisting(td *taskdata.TaskData, id string) *taskdata.Attribute {
	if attr, ok := td.Attribute(id); ok {
		return attr
	}
	return td.CreateAttribute(id)
}

func optionKey(attr *taskdata.Attribute, want string) (string, bool) {
	for _, o := range attr.Options() {
		if o.Key == want || strings.EqualFold(o.Label, want) {
			return o.Key, true
		}
	}
	return "", false
}

func taskNewCmd() *cobra.Command {
	var trackerID int
	var edits taskEdits
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if trackerID <= 0 {
				return fmt.Errorf("--tracker required")
			}
			if edits.summary == "" {
				return fmt.Errorf("--summary required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				td := taskdata.New(domain.ConnectorKind, a.Config.Repository.URL, "")
				if err := a.Connector.InitializeNewTaskData(ctx, td, trackerID); err != nil {
					return err
				}
				if edits.status == "" {
					// A new artifact takes the first status the workflow allows.
					if op, ok := td.Attribute(taskdata.PrefixOperation + taskdata.Status); ok && len(op.Options()) > 0 {
						op.SetValue(op.Options()[0].Key)
					}
				}
				if err := edits.apply(td); err != nil {
					return err
				}
				res, err := a.Engine.PostTask(ctx, td)
				if err != nil {
					return err
				}
				return printPostResult(a, res)
			})
		},
	}
	cmd.Flags().IntVar(&trackerID, "tracker", 0, "tracker id")
	edits.bind(cmd)
	return cmd
}

func taskPostCmd() *cobra.Command {
	var edits taskEdits
	cmd := &cobra.Command{
		Use:   "post <task-id|url>",
		Short: "Update an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveTaskID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				td, err := a.Connector.GetTaskData(ctx, id)
				if err != nil {
					return err
				}
				if err := edits.apply(td); err != nil {
					return err
				}
				res, err := a.Engine.PostTask(ctx, td)
				if err != nil {
					return err
				}
				return printPostResult(a, res)
			})
		},
	}
	edits.bind(cmd)
	return cmd
}

func taskImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <getArtifacts.xml>",
		Short: "Cache the artifacts of a saved SOAP getArtifacts response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.LoadUsers(ctx); err != nil {
					return err
				}
				report, err := a.Engine.ImportSOAP(ctx, filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				return printSyncReport(report)
			})
		},
	}
}

func printPostResult(a *app.Context, res connector.PostResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	id, err := domain.ParseTaskID(res.TaskID)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", res.Kind, res.TaskID, connector.TaskURL(a.Config.Repository.URL, id))
	return nil
}

func queryCmd() *cobra.Command {
	q := &cobra.Command{Use: "query", Short: "Run saved queries"}
	q.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the queries saved in tuleap.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			tw := newTable("Name", "Title", "Kind", "Target")
			for name, sq := range cfg.Queries {
				target := ""
				switch sq.Kind {
				case connector.KindReport:
					target = "report " + strconv.Itoa(sq.ReportID)
				case connector.KindCustom:
					target = "tracker " + strconv.Itoa(sq.TrackerID)
				case connector.KindTopLevelPlanning:
					target = "project " + strconv.Itoa(sq.ProjectID)
				}
				tw.AppendRow(table.Row{name, sq.Title, sq.Kind, target})
			}
			tw.SortBy([]table.SortBy{{Name: "Name", Mode: table.Asc}})
			tw.Render()
			return nil
		},
	})
	q.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run a saved query and cache its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				query, err := a.SavedQuery(args[0])
				if err != nil {
					return err
				}
				if err := a.LoadUsers(ctx); err != nil {
					return err
				}
				report, err := a.Engine.SyncQuery(ctx, args[0], query)
				if err != nil {
					return err
				}
				return printSyncReport(report)
			})
		},
	})
	return q
}

func printSyncReport(report engine.SyncReport) error {
	if viper.GetBool("json") {
		return printJSON(report)
	}
	fmt.Printf("Run %s: %d cached, %d unchanged, %d failed\n", report.RunID, len(report.Cached), len(report.Unchanged), len(report.Failures))
	for _, f := range report.Failures {
		fmt.Printf("  artifact %d: %v\n", f.ArtifactID, f.Err)
	}
	return nil
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Sync event log",
		Long:  "Every query run, task fetch and publication is logged with the id of its run.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var runID, evtType, taskID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				evts, err := a.Engine.Repo.LatestEvents(ctx, repo.EventFilters{
					RepositoryURL: a.Config.Repository.URL,
					RunID:         runID,
					Type:          evtType,
					TaskID:        taskID,
					Limit:         n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable("ID", "Time", "Run", "Type", "Task", "Payload")
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, shortRun(e.RunID), e.Type, e.TaskID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	cmd.Flags().StringVar(&evtType, "type", "", "event type")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	return cmd
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func mockCmd() *cobra.Command {
	m := &cobra.Command{Use: "mock", Short: "Local Tuleap stand-in"}
	var addr, basePath string
	var anonymous bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve a demo Tuleap REST API",
		Long:  "Serves a demo project with a bug tracker under workflow and a planning. Users admin, jdoe and asmith log in with the password \"secret\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := server.New(server.Config{
				Fixture:  server.DemoFixture(),
				BasePath: basePath,
				Auth:     server.AuthConfig{Secret: viper.GetString("mock-secret"), AllowAnonymous: anonymous},
				Logger:   log.New(os.Stderr, "", log.LstdFlags),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving mock Tuleap on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	serve.Flags().StringVar(&basePath, "base-path", config.DefaultAPIPath, "API root")
	serve.Flags().String("secret", "", "token signing secret, random when empty (env TULEAP_MOCK_SECRET)")
	serve.Flags().BoolVar(&anonymous, "anonymous", false, "accept requests without a token")
	_ = viper.BindPFlag("mock-secret", serve.Flags().Lookup("secret"))
	m.AddCommand(serve)
	return m
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Password:  viper.GetString("password"),
		Logger:    logger(),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printTask(td *taskdata.TaskData) error {
	if viper.GetBool("json") {
		return printJSON(td)
	}
	s := connector.Summarize(nil, td)
	fmt.Printf("%s  %s\n", s.TaskID, s.Summary)
	if s.URL != "" {
		fmt.Println(s.URL)
	}
	tw := newTable("Attribute", "Label", "Value")
	for _, attr := range td.Attributes() {
		label := attr.Meta.Label
		values := attr.Values()
		for i, v := range values {
			if l, ok := attr.OptionLabel(v); ok {
				values[i] = l
			}
		}
		value := strings.Join(values, ", ")
		if len(attr.Children()) > 0 {
			var parts []string
			for _, c := range attr.Children() {
				if v := c.Value(); v != "" {
					parts = append(parts, c.ID+"="+v)
				}
			}
			value = strings.Join(parts, "; ")
		}
		tw.AppendRow(table.Row{attr.ID, label, value})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
