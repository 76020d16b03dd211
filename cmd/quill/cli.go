package main

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/quill/internal/config"
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/save"
	"github.com/hpungsan/quill/internal/shell"
	"github.com/hpungsan/quill/internal/web"
)

// cliEnv carries what every command needs to open the session.
type cliEnv struct {
	baseDir string
	cfg     *config.Config
	log     logrus.FieldLogger

	// stdin returns piped input and whether any was piped.
	stdin func() (string, bool, error)
	// prompter confirms writes when --yes is not given. Nil denies them.
	prompter filehandle.Prompter
	// namePrompt names downloads when --yes is not given. Nil accepts the
	// suggested name.
	namePrompt filehandle.NamePrompter
}

// openShell opens the session for one command.
func (e *cliEnv) openShell(c *cli.Context) (*shell.Shell, error) {
	prompter, namePrompt := e.prompter, e.namePrompt
	if c.Bool("yes") {
		prompter, namePrompt = grantWrites, nil
	}
	return shell.Open(c.Context, shell.Options{
		BaseDir:    e.baseDir,
		Config:     e.cfg,
		Logger:     e.log,
		Prompter:   prompter,
		NamePrompt: namePrompt,
	})
}

// withShell runs fn against an open session and closes it afterwards so
// edits are persisted before the process exits.
func (e *cliEnv) withShell(c *cli.Context, fn func(*shell.Shell) error) error {
	sh, err := e.openShell(c)
	if err != nil {
		return outputError(err)
	}
	runErr := fn(sh)
	if err := sh.Close(context.Background()); err != nil && runErr == nil {
		return outputError(err)
	}
	return runErr
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *cliEnv) *cli.App {
	app := &cli.App{
		Name:    "quill",
		Usage:   "Document session engine for a code editor shell",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Grant write permission to bound files without asking"},
		},
		Commands: []*cli.Command{
			newCmd(env),
			openCmd(env),
			listCmd(env),
			activateCmd(env),
			closeCmd(env),
			renameCmd(env),
			languageCmd(env),
			showCmd(env),
			editCmd(env),
			saveCmd(env),
			saveAllCmd(env),
			compareCmd(env),
			modeCmd(env),
			diffCmd(env),
			settingsCmd(env),
			pluginCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// newCmd creates the new command.
func newCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "new",
		Usage: "Create a document and make it active (content may be piped via stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Document name (default Untitled)"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Language ID (default: inferred from name)"},
		},
		Action: func(c *cli.Context) error {
			content, _, err := env.stdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return env.withShell(c, func(sh *shell.Shell) error {
				return outputJSON(sh.New(shell.NewInput{
					Name:     c.String("name"),
					Content:  content,
					Language: c.String("language"),
				}))
			})
		},
	}
}

// openCmd creates the open command.
func openCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open a file into a document bound to it",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("path is required"))
			}
			return env.withShell(c, func(sh *shell.Shell) error {
				out, err := sh.OpenPath(c.Context, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			})
		},
	}
}

// listCmd creates the list command.
func listCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List open documents in tab order",
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				return outputJSON(sh.List())
			})
		},
	}
}

// activateCmd creates the activate command.
func activateCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "activate",
		Usage:     "Make a document the active one",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("document ID is required"))
			}
			return env.withShell(c, func(sh *shell.Shell) error {
				out, err := sh.Activate(c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			})
		},
	}
}

// closeCmd creates the close command.
func closeCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "close",
		Usage:     "Close a document without saving (default: the active one)",
		ArgsUsage: "[id]",
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				out, err := sh.CloseDocument(c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			})
		},
	}
}

// renameCmd creates the rename command.
func renameCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a document",
		ArgsUsage: "<id> <name>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("document ID and name are required"))
			}
			return env.withShell(c, func(sh *shell.Shell) error {
				out, err := sh.Rename(c.Args().Get(0), c.Args().Get(1))
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			})
		},
	}
}

// languageCmd creates the language command.
func languageCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "language",
		Usage:     "Set a document's language",
		ArgsUsage: "<id> <language>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("document ID and language are required"))
			}
			return env.withShell(c, func(sh *shell.Shell) error {
				out, err := sh.SetLanguage(c.Args().Get(0), c.Args().Get(1))
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			})
		},
	}
}

// showCmd creates the show command.
func showCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a document with its content (default: the active one)",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Usage: "Print only the content"},
		},
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				out, err := sh.Text(c.Args().First())
				if err != nil {
					return outputError(err)
				}
				if c.Bool("raw") {
					_, err := io.WriteString(os.Stdout, out.Content)
					return err
				}
				return outputJSON(out)
			})
		},
	}
}

// editCmd creates the edit command.
func editCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace a document's content with stdin (default: the active one)",
		ArgsUsage: "[id]",
		Action: func(c *cli.Context) error {
			content, piped, err := env.stdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if !piped {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}
			return env.withShell(c, func(sh *shell.Shell) error {
				out, err := sh.SetText(c.Args().First(), content)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			})
		},
	}
}

// saveCmd creates the save command.
func saveCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a document (default: the active one)",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Save as this file and bind the document to it"},
			&cli.StringFlag{Name: "filename", Usage: "Download name for an unbound document (empty cancels)"},
		},
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				ctx := c.Context
				if c.IsSet("filename") {
					ctx = shell.WithFilename(ctx, c.String("filename"))
				}
				var out save.Outcome
				if path := c.String("path"); path != "" {
					out = sh.SaveAs(ctx, c.Args().First(), path)
				} else {
					out = sh.Save(ctx, c.Args().First())
				}
				if !out.OK() && out.Status != save.StatusSkipped {
					return outputStatus(sh.Status())
				}
				return outputJSON(out)
			})
		},
	}
}

// saveAllCmd creates the save-all command.
func saveAllCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "save-all",
		Usage: "Save every dirty document",
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				outs := sh.SaveAll(c.Context)
				if err := outputJSON(map[string]any{"outcomes": outs, "status": sh.Status()}); err != nil {
					return err
				}
				if st := sh.Status(); !st.OK {
					return outputStatus(st)
				}
				return nil
			})
		},
	}
}

// compareCmd creates the compare command group.
func compareCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Manage the compare buffer",
		Subcommands: []*cli.Command{
			{
				Name:      "load",
				Usage:     "Load the compare buffer from a file",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("path is required"))
					}
					return env.withShell(c, func(sh *shell.Shell) error {
						out, err := sh.LoadCompare(c.Context, c.Args().First())
						if err != nil {
							return outputError(err)
						}
						return outputJSON(out)
					})
				},
			},
			{
				Name:  "set",
				Usage: "Set the compare buffer from stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name"},
				},
				Action: func(c *cli.Context) error {
					content, piped, err := env.stdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					if !piped {
						return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
					}
					return env.withShell(c, func(sh *shell.Shell) error {
						return outputJSON(sh.SetCompare(content, c.String("name")))
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Empty the compare buffer",
				Action: func(c *cli.Context) error {
					return env.withShell(c, func(sh *shell.Shell) error {
						return outputJSON(sh.ClearCompare())
					})
				},
			},
		},
	}
}

// modeCmd creates the mode command.
func modeCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "mode",
		Usage:     "Show or change the view mode",
		ArgsUsage: "[single|split|diff]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "lock", Usage: "Engage (--lock) or release (--lock=false) the scroll lock"},
			&cli.StringFlag{Name: "policy", Usage: "Scroll lock policy: sync|offset"},
			&cli.BoolFlag{Name: "toggle-layout", Usage: "Toggle between single and split"},
		},
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				if mode := c.Args().First(); mode != "" {
					if _, err := sh.SetMode(mode); err != nil {
						return outputError(err)
					}
				}
				if c.Bool("toggle-layout") {
					if _, err := sh.ToggleLayout(); err != nil {
						return outputError(err)
					}
				}
				if policy := c.String("policy"); policy != "" {
					if _, err := sh.SetLockPolicy(policy); err != nil {
						return outputError(err)
					}
				}
				if c.IsSet("lock") {
					if _, err := sh.SetScrollLock(c.Bool("lock")); err != nil {
						return outputError(err)
					}
				}
				return outputJSON(sh.ViewState())
			})
		},
	}
}

// diffCmd creates the diff command.
func diffCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "diff",
		Usage: "Summarize differences between the active document and the compare buffer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "against", Aliases: []string{"a"}, Usage: "Load this file into the compare buffer first"},
		},
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				if path := c.String("against"); path != "" {
					if _, err := sh.LoadCompare(c.Context, path); err != nil {
						return outputError(err)
					}
				}
				return outputJSON(sh.Diff())
			})
		},
	}
}

// settingsCmd creates the settings command group.
func settingsCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Read and write preferences",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print one preference, or all of them",
				ArgsUsage: "[key]",
				Action: func(c *cli.Context) error {
					return env.withShell(c, func(sh *shell.Shell) error {
						if key := c.Args().First(); key != "" {
							v, err := sh.Preferences().Get(key)
							if err != nil {
								return outputError(err)
							}
							return outputJSON(map[string]any{key: v})
						}
						return outputJSON(sh.Settings())
					})
				},
			},
			{
				Name:      "set",
				Usage:     "Write a preference from a JSON value (e.g. 18, true, \"dark\")",
				ArgsUsage: "<key> <json>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("key and value are required"))
					}
					return env.withShell(c, func(sh *shell.Shell) error {
						v, err := sh.SetSetting(c.Context, c.Args().Get(0), settingValue(c.Args().Get(1)))
						if err != nil {
							return outputError(err)
						}
						return outputJSON(map[string]any{c.Args().Get(0): v})
					})
				},
			},
		},
	}
}

// pluginCmd creates the plugin command group.
func pluginCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "plugin",
		Usage: "Manage Lua plugins",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Store and load a plugin (code from --file or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Plugin name"},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Lua source file"},
				},
				Action: func(c *cli.Context) error {
					code, err := pluginSource(env, c.String("file"))
					if err != nil {
						return outputError(err)
					}
					return env.withShell(c, func(sh *shell.Shell) error {
						out, err := sh.AddPlugin(c.Context, c.String("name"), code)
						if out != nil {
							if jerr := outputJSON(out); jerr != nil {
								return jerr
							}
						}
						if err != nil {
							return outputError(err)
						}
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "List stored plugins",
				Action: func(c *cli.Context) error {
					return env.withShell(c, func(sh *shell.Shell) error {
						out, err := sh.ListPlugins(c.Context)
						if err != nil {
							return outputError(err)
						}
						return outputJSON(out)
					})
				},
			},
			pluginIDCmd(env, "enable", "Enable and load a plugin", (*shell.Shell).EnablePlugin),
			pluginIDCmd(env, "disable", "Disable and unload a plugin", (*shell.Shell).DisablePlugin),
			pluginIDCmd(env, "remove", "Delete a plugin and its storage", (*shell.Shell).RemovePlugin),
			{
				Name:  "actions",
				Usage: "List registered plugin actions",
				Action: func(c *cli.Context) error {
					return env.withShell(c, func(sh *shell.Shell) error {
						return outputJSON(sh.Actions())
					})
				},
			},
			{
				Name:      "run",
				Usage:     "Run a plugin action against the active document",
				ArgsUsage: "<action-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "selection", Aliases: []string{"s"}, Usage: "Byte range start:end the action sees as the selection"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("action ID is required"))
					}
					var cursor *shell.CursorInput
					if v := c.String("selection"); v != "" {
						in, err := parseSelection(v)
						if err != nil {
							return outputError(err)
						}
						cursor = &in
					}
					return env.withShell(c, func(sh *shell.Shell) error {
						if cursor != nil {
							if _, err := sh.SetCursor(*cursor); err != nil {
								return outputError(err)
							}
						}
						if err := sh.RunAction(c.Context, c.Args().First()); err != nil {
							return outputError(err)
						}
						return outputJSON(sh.Status())
					})
				},
			},
		},
	}
}

func pluginIDCmd(env *cliEnv, name, usage string, fn func(*shell.Shell, context.Context, string) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<plugin-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("plugin ID is required"))
			}
			return env.withShell(c, func(sh *shell.Shell) error {
				if err := fn(sh, c.Context, c.Args().First()); err != nil {
					return outputError(err)
				}
				return outputJSON(sh.Status())
			})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the browser shell",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 7432, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			return env.withShell(c, func(sh *shell.Shell) error {
				srv, err := web.NewServer(sh, env.log, Version, c.String("bind"), c.Int("port"))
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if err := web.Run(srv, env.log); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
					return outputError(errors.NewInternal(err))
				}
				return nil
			})
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var qErr *errors.QuillError
	if stderrors.As(err, &qErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", qErr.Code, qErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// outputStatus formats a failed status line for CLI.
func outputStatus(st shell.Status) error {
	if st.Code != "" {
		return cli.Exit(fmt.Sprintf("[%s] %s", st.Code, st.Message), 1)
	}
	return cli.Exit(st.Message, 1)
}

// settingValue treats an argument that is not valid JSON as a string.
func settingValue(arg string) json.RawMessage {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	b, _ := json.Marshal(arg)
	return b
}

// parseSelection reads "start:end", or a single offset for a caret.
func parseSelection(v string) (shell.CursorInput, error) {
	startStr, endStr, hasEnd := strings.Cut(v, ":")
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return shell.CursorInput{}, errors.NewInvalidRequest(fmt.Sprintf("invalid selection %q (want start:end)", v))
	}
	in := shell.CursorInput{SelectionStart: &start}
	if hasEnd {
		end, err := strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil {
			return shell.CursorInput{}, errors.NewInvalidRequest(fmt.Sprintf("invalid selection %q (want start:end)", v))
		}
		in.SelectionEnd = &end
	}
	return in, nil
}

// pluginSource reads plugin code from file, or from stdin when file is empty.
func pluginSource(env *cliEnv, file string) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			if stderrors.Is(err, os.ErrNotExist) {
				return "", errors.NewNotFound("file", file)
			}
			return "", errors.NewInternal(err)
		}
		return string(b), nil
	}
	code, piped, err := env.stdin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if !piped || strings.TrimSpace(code) == "" {
		return "", errors.NewInvalidRequest("plugin code must be given with --file or piped via stdin")
	}
	return code, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads piped stdin. Content is kept byte for byte.
func readStdin() (string, bool, error) {
	if !stdinHasData() {
		return "", false, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", true, err
	}
	return string(data), true, nil
}

// grantWrites allows every write.
var grantWrites = filehandle.PrompterFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// terminalNamePrompter asks on stderr for a download name. An empty answer
// takes the suggestion; end of input declines.
func terminalNamePrompter(in io.Reader, out io.Writer) filehandle.NamePrompter {
	reader := bufio.NewReader(in)
	return filehandle.NamePrompterFunc(func(_ context.Context, suggested string) (string, error) {
		fmt.Fprintf(out, "Download as [%s]: ", suggested)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		if err == io.EOF && line == "" {
			return "", nil
		}
		if name := strings.TrimSpace(line); name != "" {
			return name, nil
		}
		return suggested, nil
	})
}

// terminalPrompter asks on stderr and reads the answer from the terminal.
func terminalPrompter(in io.Reader, out io.Writer) filehandle.Prompter {
	reader := bufio.NewReader(in)
	return filehandle.PrompterFunc(func(_ context.Context, name string) (bool, error) {
		fmt.Fprintf(out, "Allow quill to write %s? [y/N] ", name)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}
