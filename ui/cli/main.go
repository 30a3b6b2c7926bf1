// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the root command: configuration loading, the backend
// (database or remote API server) and launching the TUI when no
// subcommand is given.

package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-ca/buildvars"
	"github.com/toeirei/keymaster-ca/internal/actions"
	"github.com/toeirei/keymaster-ca/internal/api"
	"github.com/toeirei/keymaster-ca/internal/config"
	"github.com/toeirei/keymaster-ca/internal/db"
	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/logging"
	"github.com/toeirei/keymaster-ca/internal/remote"
	"github.com/toeirei/keymaster-ca/internal/tui"
	"golang.org/x/term"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

// errNeedsDatabase is returned by commands that only work against a local
// database while server.url points at a remote API server.
var errNeedsDatabase = errors.New("this command needs direct database access; unset server.url")

// isTerminal is swapped out in tests.
var isTerminal = func(fd int) bool { return term.IsTerminal(fd) }

// app carries the state of one command invocation.
type app struct {
	cfg     config.Config
	cfgFile string
	verbose bool

	// backend is the authoritative store: the database or a remote server.
	backend api.Backend
	// store is set only when the database is opened directly.
	store *db.Store
	disp  *actions.Dispatcher
}

func (a *app) setup(cmd *cobra.Command) error {
	var cfgPath *string
	if cmd.Flags().Changed("config") {
		if _, err := os.Stat(a.cfgFile); err != nil {
			return fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		cfgPath = &a.cfgFile
	}

	cfg, err := config.LoadConfig[config.Config](cmd, config.Defaults(), cfgPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	a.cfg = cfg

	i18n.Init(cfg.Language)
	logging.SetLevel(cfg.Log.Level)
	if a.verbose {
		logging.SetLevel("debug")
		db.SetDebug(true)
	}
	return nil
}

// open connects the backend on first use.
func (a *app) open() error {
	if a.disp != nil {
		return nil
	}
	if a.cfg.Server.URL != "" {
		logging.Debugf("using remote API server %s", a.cfg.Server.URL)
		a.backend = remote.New(a.cfg.Server.URL, nil)
	} else {
		opts := db.Options{
			KeyType:    a.cfg.Authority.KeyType,
			Expire:     a.cfg.Authority.Expire,
			HostExpire: a.cfg.Authority.HostExpire,
		}
		s, err := db.NewStoreFromDSN(a.cfg.Database.Type, a.cfg.Database.Dsn, opts)
		if err != nil {
			return errors.New(i18n.T("cli.error_init_db", err))
		}
		a.store = s
		a.backend = s
	}
	a.disp = actions.NewDispatcher(a.backend)
	return nil
}

// openStore connects and insists on a local database.
func (a *app) openStore() (*db.Store, error) {
	if a.cfg.Server.URL != "" {
		return nil, errNeedsDatabase
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	return a.store, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Warnf("closing database: %v", err)
		}
		a.store = nil
	}
	a.disp = nil
	a.backend = nil
}

// Execute runs the CLI entrypoint. The main package calls this function and
// handles process exit.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates and configures a new root cobra command. Each call
// returns an independent command tree, which keeps tests isolated.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "keymaster-ca",
		Short: "Keymaster CA manages SSH certificate authorities.",
		Long: `Keymaster CA keeps SSH certificate authorities, their host tokens and
the nodes they are deployed to in one database, and serves the public
keys and host certificates over HTTP.

Running without a subcommand will launch the interactive TUI.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI()
		},
	}
	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output (debug logs, SQL)")
	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `UI language ("en", "de")`)
	cmd.PersistentFlags().String("database.type", "sqlite", "Database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database.dsn", "./keymaster-ca.db", "Database connection string (DSN)")
	cmd.PersistentFlags().String("server.url", "", "Talk to a running API server instead of the database")

	cmd.AddCommand(
		newServeCmd(a),
		newAuthorityCmd(a),
		newNodeCmd(a),
		newHostCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newAuditCmd(a),
		newDBMaintainCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) runTUI() error {
	if !isTerminal(int(os.Stdout.Fd())) {
		return errors.New(i18n.T("cli.error_no_terminal"))
	}
	if err := a.open(); err != nil {
		return err
	}

	// The TUI owns the terminal; logs go to a file meanwhile.
	if a.cfg.Log.File != "" {
		closer, err := logging.RedirectToFile(a.cfg.Log.File)
		if err != nil {
			logging.Warnf("could not redirect logs to %s: %v", a.cfg.Log.File, err)
		} else {
			defer func() {
				_ = closer.Close()
				logging.SetOutput(os.Stderr)
			}()
		}
	}

	return tui.Run(a.disp, tui.Options{
		PublicURL:  a.cfg.Server.PublicURL,
		MessageTTL: a.cfg.UI.MessageTTL,
		AltScreen:  true,
	})
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out += " (" + c + ")"
	}
	if d != "" {
		out += " built: " + d
	}
	return out
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If `info` is nil, it reads build info from
// the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}

	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/keymaster-ca" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		// No config or database needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}
