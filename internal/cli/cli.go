// Package cli implements the taskboard command line client. Each command
// refreshes the local store from the task service, acts through the session,
// and prints a view model as JSON.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"taskboard/internal/config"
	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/query"
	"taskboard/internal/remote"
	"taskboard/internal/session"
	"taskboard/internal/store"
	"taskboard/internal/views"
	"taskboard/pkg/logger"
)

const usage = `usage: taskboard [flags] <command> [args]

commands:
  ping                          check the service
  today                         tasks due today
  all [-status s] [-sort k]     every task (status: all|pending|completed)
  upcoming [-range r]           pending tasks by day (range: week|month|all)
  board [-status s] [-sort k]   tasks grouped by category
  dashboard                     summary figures
  analytics [-days n]           completion trend
  add [task flags] <text>       create a task
  edit <id> [task flags]        change a task; pass -due "" to clear the date
  done <id> | undo <id>         mark complete / incomplete
  rm <id>                       delete a task
`

// Env carries the process surroundings so tests can substitute them.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Config *config.Config
	Now    func() time.Time
	Remote session.Remote
}

// App is one invocation.
type App struct {
	env       Env
	session   *session.Session
	projector *views.Projector
}

// Run parses args and executes one command. It returns the exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if err := run(ctx, args, env); err != nil {
		fmt.Fprintln(env.Stderr, "taskboard:", err)
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, args []string, env Env) error {
	cfg := env.Config
	if cfg == nil {
		cfg = config.Get()
	}
	fs := flag.NewFlagSet("taskboard", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	fs.Usage = func() { fmt.Fprint(env.Stderr, usage) }
	configPath := fs.String("config", config.DefaultFilePath(), "YAML config file")
	apiURL := fs.String("api", "", "task service base URL")
	token := fs.String("token", "", "bearer token")
	tz := fs.String("tz", "", "IANA timezone for today and week boundaries")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fc, err := config.LoadFile(*configPath)
	if err != nil {
		return err
	}
	cfg = cfg.Merge(fc).Merge(config.FileConfig{APIURL: *apiURL, Token: *token, Timezone: *tz})
	if *verbose {
		cfg.LogLevel = "debug"
	}
	logger.SetLevel(cfg.LogLevel)

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	app, err := newApp(env, cfg)
	if err != nil {
		return err
	}
	return app.dispatch(ctx, cfg, rest[0], rest[1:])
}

func newApp(env Env, cfg *config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	now := env.Now
	if now == nil {
		now = time.Now
	}
	clock := func() time.Time { return now().In(loc) }

	r := env.Remote
	if r == nil {
		c, err := remote.New(cfg.APIBaseURL, cfg.APIToken)
		if err != nil {
			return nil, err
		}
		r = c
	}
	st := store.New(store.WithClock(clock))
	app := &App{env: env, session: session.New(st, r), projector: views.NewProjector(st, nil)}
	st.Subscribe(func(ev notify.Event) {
		logger.Debug(context.Background(), "Store changed", "kind", ev.Kind, "ids", ev.IDs, "version", ev.Version)
	})
	return app, nil
}

func (a *App) dispatch(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "ping":
		p, ok := a.pinger()
		if !ok {
			return errors.New("ping is not supported by this remote")
		}
		if err := p.Ping(ctx); err != nil {
			return err
		}
		return a.print(map[string]string{"status": "ok"})
	case "today":
		if err := a.refresh(ctx); err != nil {
			return err
		}
		return a.print(a.projector.Today())
	case "all", "board":
		fs := a.flags(cmd)
		status := fs.String("status", "all", "all|pending|completed")
		sortKey := fs.String("sort", cfg.DefaultSort, "date-asc|date-desc|priority|category")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := a.refresh(ctx); err != nil {
			return err
		}
		st, key := query.ParseStatus(*status), query.ParseSortKey(*sortKey)
		if cmd == "board" {
			return a.print(a.projector.Board(st, key))
		}
		return a.print(models.TaskList{Tasks: a.projector.AllTasks(st, key)})
	case "upcoming":
		fs := a.flags(cmd)
		rng := fs.String("range", cfg.UpcomingRange, "week|month|all")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := a.refresh(ctx); err != nil {
			return err
		}
		return a.print(a.projector.Upcoming(views.ParseRange(*rng)))
	case "dashboard":
		if err := a.refresh(ctx); err != nil {
			return err
		}
		return a.print(a.projector.Dashboard())
	case "analytics":
		fs := a.flags(cmd)
		days := fs.Int("days", 30, "window in days")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := a.refresh(ctx); err != nil {
			return err
		}
		return a.print(a.projector.Analytics(*days))
	case "add":
		return a.add(ctx, args)
	case "edit":
		return a.edit(ctx, args)
	case "done", "undo":
		id, err := a.loadAndID(ctx, cmd, args)
		if err != nil {
			return err
		}
		t, err := a.session.SetCompleted(ctx, id, cmd == "done")
		if err != nil {
			return err
		}
		return a.print(t)
	case "rm":
		id, err := a.loadAndID(ctx, cmd, args)
		if err != nil {
			return err
		}
		if err := a.session.Delete(ctx, id); err != nil {
			return err
		}
		return a.print(map[string]string{"deleted": id})
	}
	fmt.Fprint(a.env.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *App) pinger() (interface{ Ping(context.Context) error }, bool) {
	p, ok := a.session.Remote().(interface{ Ping(context.Context) error })
	return p, ok
}

// refresh loads the full collection. A ping runs alongside so an unreachable
// service is reported as such rather than as a fetch error.
func (a *App) refresh(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if p, ok := a.pinger(); ok {
		g.Go(func() error {
			if err := p.Ping(gctx); err != nil {
				return fmt.Errorf("service unreachable: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		_, err := a.session.Refresh(gctx, models.FetchFilter{})
		return err
	})
	return g.Wait()
}

func (a *App) loadAndID(ctx context.Context, cmd string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%s needs exactly one task id", cmd)
	}
	if err := a.refresh(ctx); err != nil {
		return "", err
	}
	return args[0], nil
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.env.Stderr)
	return fs
}

// taskFlags binds the mutable task fields. Only flags given on the command
// line end up in the patch.
type taskFlags struct {
	fs       *flag.FlagSet
	text     *string
	category *string
	priority *string
	due      *string
	at       *string
	note     *string
}

func (a *App) taskFlags(name string) *taskFlags {
	fs := a.flags(name)
	return &taskFlags{
		fs:       fs,
		text:     fs.String("text", "", "task text"),
		category: fs.String("category", "", "category"),
		priority: fs.String("priority", "", "High|Medium|Normal|Low"),
		due:      fs.String("due", "", "due date (YYYY-MM-DD or any common date format)"),
		at:       fs.String("at", "", "due time (HH:MM)"),
		note:     fs.String("notes", "", "notes"),
	}
}

func (tf *taskFlags) patch() (models.TaskPatch, error) {
	var p models.TaskPatch
	var err error
	tf.fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "text":
			p.Text = models.StringPtr(v)
		case "category":
			p.Category = models.StringPtr(v)
		case "priority":
			p.Priority = models.PriorityPtr(models.ParsePriority(v))
		case "due":
			if v == "" {
				p.DueDate = models.Null[models.Date]()
				return
			}
			d, perr := models.ParseDate(v)
			if perr != nil {
				err = fmt.Errorf("invalid -due %q: %w", v, perr)
				return
			}
			p.DueDate = models.Some(d)
		case "at":
			if v == "" {
				p.DueTime = models.Null[string]()
			} else {
				p.DueTime = models.Some(v)
			}
		case "notes":
			if v == "" {
				p.Notes = models.Null[string]()
			} else {
				p.Notes = models.Some(v)
			}
		}
	})
	return p, err
}

func (a *App) add(ctx context.Context, args []string) error {
	tf := a.taskFlags("add")
	if err := tf.fs.Parse(args); err != nil {
		return err
	}
	p, err := tf.patch()
	if err != nil {
		return err
	}
	if text := strings.Join(tf.fs.Args(), " "); p.Text == nil && text != "" {
		p.Text = &text
	}
	t, err := a.session.Create(ctx, p)
	if err != nil {
		return err
	}
	return a.print(t)
}

func (a *App) edit(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("edit needs a task id before its flags")
	}
	id := args[0]
	tf := a.taskFlags("edit")
	if err := tf.fs.Parse(args[1:]); err != nil {
		return err
	}
	p, err := tf.patch()
	if err != nil {
		return err
	}
	if p.Empty() {
		return errors.New("edit: nothing to change")
	}
	if err := a.refresh(ctx); err != nil {
		return err
	}
	t, err := a.session.Update(ctx, id, p)
	if err != nil {
		return err
	}
	return a.print(t)
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.env.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
