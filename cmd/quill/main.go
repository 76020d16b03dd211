package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/quill/internal/config"
	"github.com/hpungsan/quill/internal/logging"
	"github.com/hpungsan/quill/internal/mcp"
	"github.com/hpungsan/quill/internal/shell"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"new": true, "open": true, "list": true, "activate": true, "close": true,
	"rename": true, "language": true, "show": true, "edit": true,
	"save": true, "save-all": true, "compare": true, "mode": true, "diff": true,
	"settings": true, "plugin": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags precede the subcommand
	if arg == "--yes" || arg == "-y" {
		return len(os.Args) > 2 && cliCommands[os.Args[2]]
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    ___        _ _ _
   / _ \ _   _(_) | |
  | | | | | | | | | |
  | |_| | |_| | | | |
   \__\_\\__,_|_|_|_|

  Document sessions for a code editor shell

  Usage: quill <command> [options]
         quill --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before opening the session
	if isHelpOrVersion() {
		app := newCLIApp(&cliEnv{stdin: readStdin})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".quill")

	wd, err := os.Getwd()
	if err != nil {
		wd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unknown tools in disabled_tools: %v\n", unknown)
	}
	log := logging.New(cfg, os.Stderr)

	// CLI mode: known subcommand
	if isCLIMode() {
		env := &cliEnv{baseDir: baseDir, cfg: cfg, log: log, stdin: readStdin}
		if isTerminal() {
			// One reader so neither prompt loses input buffered by the other
			in := bufio.NewReader(os.Stdin)
			env.prompter = terminalPrompter(in, os.Stderr)
			env.namePrompt = terminalNamePrompter(in, os.Stderr)
		}
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'quill --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default). The client drives every write explicitly.
	ctx := context.Background()
	sh, err := shell.Open(ctx, shell.Options{
		BaseDir:  baseDir,
		Config:   cfg,
		Logger:   log,
		Prompter: grantWrites,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open session: %v\n", err)
		os.Exit(1)
	}
	runErr := mcp.Run(sh, cfg, Version)
	if err := sh.Close(ctx); err != nil {
		log.WithError(err).Warn("closing session")
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
