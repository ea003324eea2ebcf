// Command clikactl is the operations CLI for the CLIKA admin API: apply
// migrations, seed development data, inspect feature flags, and change a
// dashboard user's role without going through the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/clika/admin-api/config"
	"github.com/clika/admin-api/internal/bootstrap"
	"github.com/clika/admin-api/internal/data"
	"github.com/clika/admin-api/internal/devseed"
	domainauth "github.com/clika/admin-api/internal/domain/auth"
	"github.com/clika/admin-api/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status on unknown command
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must exit with failure status on config errors
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}

	if err := cmd.run(cmdCtx, os.Args[2:]); err != nil {
		logger.Error("command failed", "command", cmdName, "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must exit with failure status on command errors
	}
}

func commands() map[string]command {
	cmds := []command{
		{name: "migrate", description: "apply pending database migrations", run: runMigrate},
		{name: "seed", description: "seed development profiles, content, campaigns, and flags", run: runSeed},
		{name: "flags", description: "list feature flags", run: runFlags},
		{name: "promote", description: "set a dashboard user's role", run: runPromote},
	}

	byName := make(map[string]command, len(cmds))
	for _, c := range cmds {
		byName[c.name] = c
	}
	return byName
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: clikactl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\t%s\n", name, cmds[name].description)
	}
	_ = w.Flush()
}

func runMigrate(ctx *commandContext, _ []string) error {
	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, ctx.Logger)

	migrateCtx, cancel := context.WithTimeout(ctx.Ctx, defaultMigrationTimeout)
	defer cancel()

	return bootstrap.RunMigrations(migrateCtx, db, ctx.Logger)
}

func runSeed(ctx *commandContext, _ []string) error {
	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, ctx.Logger)

	return devseed.Run(ctx.Ctx, devseed.NewServices(db), ctx.Logger)
}

func runFlags(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("flags", flag.ContinueOnError)
	enabledOnly := fs.Bool("enabled", false, "show only enabled flags")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, ctx.Logger)

	opts := model.FlagListOptions{}
	if *enabledOnly {
		t := true
		opts.Enabled = &t
	}

	flags, err := data.NewFlagRepo(db).List(ctx.Ctx, opts)
	if err != nil {
		return fmt.Errorf("list flags: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tENABLED\tROLLOUT\tEXPRESSION\tDESCRIPTION")
	for _, f := range flags {
		expr := f.Rules.Expression
		if expr == "" {
			expr = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%d%%\t%s\t%s\n",
			f.Key, f.Enabled, f.Rules.RolloutPercent, expr, f.Description)
	}
	return w.Flush()
}

func runPromote(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	userID := fs.String("user", "", "dashboard user ID (required)")
	role := fs.String("role", "", "new role: admin, editor, reviewer, advertiser, analyst (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *userID == "" || *role == "" {
		fs.Usage()
		return fmt.Errorf("promote requires -user and -role")
	}

	newRole := domainauth.ParseRole(*role)
	if newRole == domainauth.RoleNone {
		return fmt.Errorf("invalid role %q", *role)
	}

	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, ctx.Logger)

	profile, err := data.NewProfileRepo(db).Update(ctx.Ctx, *userID, domainauth.ProfilePatch{Role: &newRole})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	ctx.Logger.Info("role updated",
		"user_id", profile.UserID,
		"display_name", profile.DisplayName,
		"role", profile.Role,
	)
	return nil
}
