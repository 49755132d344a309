// Package cli implements the consoleauth command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"consoleauth/internal/permission"
	"consoleauth/internal/platform/config"
	"consoleauth/internal/platform/logger"
	"consoleauth/internal/platform/metrics"
	platformredis "consoleauth/internal/platform/redis"
	"consoleauth/internal/session"
	"consoleauth/internal/session/apiclient"
	"consoleauth/internal/session/token"
)

// Version is stamped at build time with -ldflags "-X consoleauth/internal/cli.Version=...".
var Version = "dev"

// app holds what every command shares. Dependencies are built lazily on the
// first command that needs a session, so help and completion stay offline.
type app struct {
	cfg config.Config
	in  io.Reader

	api   session.AuthAPI
	store token.Store

	logger  *slog.Logger
	metrics *metrics.Metrics
	cache   *permission.Cache[bool]
	redis   *platformredis.Client
	session *session.Manager
}

// Option replaces a dependency, mainly for tests.
type Option func(*app)

// WithAPI uses api instead of building an HTTP client from config.
func WithAPI(api session.AuthAPI) Option {
	return func(a *app) { a.api = api }
}

// WithStore uses store instead of the configured backend.
func WithStore(store token.Store) Option {
	return func(a *app) { a.store = store }
}

// WithConfig starts from cfg instead of the environment.
func WithConfig(cfg config.Config) Option {
	return func(a *app) { a.cfg = cfg }
}

// Execute runs the command line in args and releases every resource the
// command opened.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, opts ...Option) error {
	a := &app{cfg: config.FromEnv(), in: stdin}
	for _, opt := range opts {
		opt(a)
	}
	defer a.close()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "consoleauth",
		Short: "Manage the console's authenticated session",
		Long: `consoleauth keeps a console session alive: it logs in against the backend,
stores the token pair, refreshes it before it expires, and answers
permission questions locally.

Examples:
  consoleauth login -u alice
  consoleauth can --perm user.read --perm user.update --all
  consoleauth serve --addr :8090`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.APIBaseURL, "api-url", a.cfg.APIBaseURL, "backend API base URL")
	flags.StringVar(&a.cfg.TokenStore, "store", a.cfg.TokenStore, "token store backend: file, memory or redis")
	flags.StringVar(&a.cfg.Home, "home", a.cfg.Home, "directory for the file token store")
	flags.StringVar(&a.cfg.Redis.URL, "redis-url", a.cfg.Redis.URL, "redis URL for the redis token store")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level: debug, info, warn or error")
	flags.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log format: text or json")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newStatusCommand(a),
		newRefreshCommand(a),
		newWhoamiCommand(a),
		newCanCommand(a),
		newTwoFactorCommand(a),
		newPasswordCommand(a),
		newProfileCommand(a),
		newRegisterCommand(a),
		newServeCommand(a),
	)
	return root
}

// run builds the session before fn runs.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.setup(cmd); err != nil {
			return err
		}
		return fn(cmd, args)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.session != nil {
		return nil
	}
	ctx := cmd.Context()
	a.logger = logger.NewWithWriter(cmd.ErrOrStderr(), a.cfg.LogLevel, a.cfg.LogFormat)
	a.metrics = metrics.New()
	a.cache = permission.NewCache[bool]()

	if a.store == nil {
		store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		a.store = store
	}
	if a.api == nil {
		client, err := apiclient.New(a.cfg.APIBaseURL,
			apiclient.WithTimeout(a.cfg.HTTPTimeout),
			apiclient.WithVersion(Version),
			apiclient.WithLogger(a.logger),
		)
		if err != nil {
			return fmt.Errorf("backend client: %w", err)
		}
		a.api = client
	}

	mgr, err := session.New(a.api, a.store,
		session.WithLogger(a.logger),
		session.WithCache(a.cache),
		session.WithMetrics(a.metrics),
		session.WithCheckInterval(a.cfg.CheckInterval),
		session.WithRefreshThreshold(a.cfg.RefreshThresholdMinutes),
		session.WithLoginRedirector(consoleRedirector{w: cmd.ErrOrStderr()}),
	)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	a.session = mgr
	return nil
}

func (a *app) openStore(ctx context.Context) (token.Store, error) {
	switch a.cfg.TokenStore {
	case config.StoreMemory:
		return token.NewMemoryStore(), nil
	case config.StoreRedis:
		client, err := platformredis.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis token store: %w", err)
		}
		if client == nil {
			return nil, errors.New("redis token store needs --redis-url or CONSOLEAUTH_REDIS_URL")
		}
		a.redis = client
		return token.NewRedisStore(client.Client, token.WithPrefix(a.cfg.Redis.Prefix)), nil
	case config.StoreFile, "":
		dir := a.cfg.Home
		if dir == "" {
			d, err := token.DefaultDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		return token.NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unknown token store %q", a.cfg.TokenStore)
	}
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && a.logger != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
}

// consoleRedirector tells the operator to sign in again once the session is
// gone.
type consoleRedirector struct {
	w io.Writer
}

func (r consoleRedirector) RedirectToLogin(_ context.Context, reason string) {
	if reason == "" {
		reason = "session ended"
	}
	fmt.Fprintf(r.w, "%s. Run `consoleauth login` to sign in again.\n", reason)
}
