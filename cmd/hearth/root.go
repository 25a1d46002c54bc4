package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/hearthly/hearth/internal/app"
	"github.com/hearthly/hearth/internal/client"
	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/internal/stores"
)

const version = "0.4.0"

// cli carries state shared by every command of one invocation.
type cli struct {
	configDir   string
	envFile     string
	server      string
	token       string
	offlinePath string
	logLevel    string

	out     io.Writer
	cfg     *app.Config
	runtime *client.Runtime
	opts    []client.Option
}

func execute(ctx context.Context, args []string) int {
	c := &cli{out: os.Stdout}
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if closeErr := c.close(); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hearth",
		Short: "household chores, family and shopping list that keeps working offline",
		Long: fmt.Sprintf(`hearth (v%s)

Reads and changes the household data of a hearth server. Changes made while the
server is unreachable are kept locally and replayed once it is back.`, version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configDir, "config", "", "directory holding config.yaml")
	flags.StringVar(&c.envFile, "env-file", ".env", "optional .env file")
	flags.StringVar(&c.server, "server", "", "household server base URL (overrides remote.base_url)")
	flags.StringVar(&c.token, "token", "", "bearer token (overrides remote.token)")
	flags.StringVar(&c.offlinePath, "offline-path", "", "offline database file (overrides offline.path)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (overrides client.log_level)")

	root.AddCommand(
		c.versionCmd(),
		c.statusCmd(),
		c.syncCmd(),
		c.pullCmd(),
		c.clearCmd(),
		c.watchCmd(),
		c.choresCmd(),
		c.familyCmd(),
		c.shoppingCmd(),
	)
	return root
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hearth",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hearth v%s\n", version)
		},
	}
}

// open loads configuration and opens the runtime once per invocation.
func (c *cli) open(ctx context.Context) (*client.Runtime, error) {
	if c.runtime != nil {
		return c.runtime, nil
	}
	if err := app.LoadEnvFiles(c.envFile); err != nil {
		return nil, err
	}

	var paths []string
	if c.configDir != "" {
		paths = append(paths, c.configDir)
	}
	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return nil, err
	}
	if c.server != "" {
		cfg.Remote.BaseURL = c.server
	}
	if c.token != "" {
		cfg.Remote.Token = c.token
	}
	if c.offlinePath != "" {
		cfg.Offline.Path = c.offlinePath
	}
	if c.logLevel != "" {
		cfg.Client.LogLevel = c.logLevel
	}
	if err := app.ConfigureClientLogging(cfg.Client.LogLevel); err != nil {
		return nil, err
	}

	if monitoring.CurrentModule() == nil {
		module, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
		if err != nil {
			return nil, err
		}
		monitoring.SetModule(module)
	}

	rt, err := client.New(ctx, cfg, c.opts...)
	if err != nil {
		return nil, err
	}
	if err := rt.Open(ctx); err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	c.cfg = cfg
	c.runtime = rt
	return rt, nil
}

func (c *cli) close() error {
	if c.runtime == nil {
		return nil
	}
	err := c.runtime.Close()
	c.runtime = nil
	return err
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// report describes how a mutation was settled.
func (c *cli) report(what string, res stores.MutationResult) {
	if res.Queued {
		c.printf("%s (offline, queued for sync)\n", what)
		return
	}
	c.printf("%s\n", what)
}

// resolveID expands a unique id prefix against ids.
func resolveID(arg string, ids []string) (string, error) {
	arg = strings.TrimSpace(arg)
	var matches []string
	for _, id := range ids {
		if id == arg {
			return id, nil
		}
		if strings.HasPrefix(id, arg) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no item matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", arg, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 14 {
		return id[:14]
	}
	return id
}
