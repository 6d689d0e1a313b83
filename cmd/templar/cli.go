package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/ops"
	"github.com/siakad/templar/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.App {
	app := &cli.App{
		Name:    "templar",
		Usage:   "Document templates with named variables",
		Version: Version,
		Commands: []*cli.Command{
			importCmd(db, cfg),
			listCmd(db),
			searchCmd(db),
			previewCmd(db),
			detectCmd(db, cfg, logger),
			varsCmd(db),
			generateCmd(db, cfg),
			historyCmd(db),
			deleteCmd(db),
			purgeCmd(db),
			serveCmd(db, cfg, logger),
		},
		// Values such as "Jakarta, 15 Januari 2024" contain commas
		DisableSliceFlagSeparator: true,
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// refFlags address a template by name when no positional id is given.
func refFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Template name"},
	}
}

// templateRef reads the positional [id] or --name.
func templateRef(c *cli.Context) ops.TemplateRef {
	if c.NArg() > 0 {
		return ops.TemplateRef{ID: c.Args().First()}
	}
	return ops.TemplateRef{Name: c.String("name")}
}

// importCmd creates the import command.
func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a .docx, .md or .txt template (use - to read stdin with --filename)",
		ArgsUsage: "<path|->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Template name (default: file name)"},
			&cli.StringFlag{Name: "filename", Usage: "File name for stdin content; decides the format"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewMissingField("path"))
			}
			input := ops.ImportInput{
				Name: c.String("name"),
				Mode: ops.ImportMode(c.String("mode")),
			}

			if path := c.Args().First(); path == "-" {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("template content must be piped via stdin"))
				}
				data, err := readStdinWithLimit(maxTemplateBytes(cfg))
				if err != nil {
					return outputError(err)
				}
				input.Filename = c.String("filename")
				input.Data = data
			} else {
				input.Path = path
			}

			output, err := ops.Import(c.Context, db, cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List templates, most recently updated first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted templates"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, db, ops.ListInput{
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over template names and text",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSearchLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted templates"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Search(c.Context, db, ops.SearchInput{
				Query:          strings.Join(c.Args().Slice(), " "),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// previewCmd creates the preview command.
func previewCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Show a template's HTML, raw text, saved variables and lint report",
		ArgsUsage: "[id]",
		Flags:     refFlags(),
		Action: func(c *cli.Context) error {
			ref := templateRef(c)
			output, err := ops.Preview(c.Context, db, ops.PreviewInput{ID: ref.ID, Name: ref.Name})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// detectCmd creates the detect command.
func detectCmd(db *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Detect candidate fields in a template, or in text piped via stdin",
		ArgsUsage: "[id]",
		Flags: append(refFlags(),
			&cli.BoolFlag{Name: "variables-only", Usage: "Keep only fields judged variable"},
			&cli.Float64Flag{Name: "min-confidence", Usage: "Drop fields below this confidence (0-1)"},
		),
		Action: func(c *cli.Context) error {
			matcher, err := ops.NewMatcher(cfg, logger)
			if err != nil {
				return outputError(err)
			}

			ref := templateRef(c)
			input := ops.DetectInput{
				ID:            ref.ID,
				Name:          ref.Name,
				VariablesOnly: c.Bool("variables-only"),
				MinConfidence: c.Float64("min-confidence"),
			}
			if ref.ID == "" && ref.Name == "" {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("give a template id, --name, or pipe text via stdin"))
				}
				data, err := readStdinWithLimit(maxTemplateBytes(cfg))
				if err != nil {
					return outputError(err)
				}
				input.Text = string(data)
			}

			output, err := ops.Detect(c.Context, db, matcher, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// varsResult is printed by the mutating vars subcommands.
type varsResult struct {
	Change *ops.SessionChange `json:"change"`
	Saved  *ops.SaveOutput    `json:"saved"`
}

// withSession opens a session on the template, applies fn and saves the result.
func withSession(c *cli.Context, db *sql.DB, fn func(mgr *binding.Manager, id string) (*ops.SessionChange, error)) error {
	ref := templateRef(c)
	mgr := binding.NewManager()
	state, err := ops.OpenSession(c.Context, db, mgr, ops.SessionOpenInput{ID: ref.ID, Name: ref.Name})
	if err != nil {
		return outputError(err)
	}
	defer mgr.Close(state.TemplateID)

	change, err := fn(mgr, state.TemplateID)
	if err != nil {
		return outputError(err)
	}
	saved, err := ops.SaveSession(c.Context, db, mgr, state.TemplateID)
	if err != nil {
		return outputError(err)
	}
	return outputJSON(c, varsResult{Change: change, Saved: saved})
}

// varsCmd creates the vars command with its subcommands.
func varsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "vars",
		Usage: "List or change a template's variables",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List saved variables",
				ArgsUsage: "[id]",
				Flags:     refFlags(),
				Action: func(c *cli.Context) error {
					ref := templateRef(c)
					mgr := binding.NewManager()
					state, err := ops.OpenSession(c.Context, db, mgr, ops.SessionOpenInput{ID: ref.ID, Name: ref.Name})
					if err != nil {
						return outputError(err)
					}
					mgr.Close(state.TemplateID)
					return outputJSON(c, state)
				},
			},
			{
				Name:      "add",
				Usage:     "Bind a text to a new variable",
				ArgsUsage: "[id]",
				Flags: append(refFlags(),
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true, Usage: "Variable key"},
					&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Required: true, Usage: "Label"},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: "text", Usage: "text|number|date"},
					&cli.StringFlag{Name: "text", Required: true, Usage: "Literal text the variable replaces"},
					&cli.IntFlag{Name: "start", Usage: "Byte offset of the text (default: first occurrence)"},
					&cli.IntFlag{Name: "end", Usage: "End byte offset, exclusive"},
				),
				Action: func(c *cli.Context) error {
					return withSession(c, db, func(mgr *binding.Manager, id string) (*ops.SessionChange, error) {
						return ops.SessionAdd(mgr, id, binding.AddInput{
							Key:         c.String("key"),
							Label:       c.String("label"),
							Type:        binding.VarType(c.String("type")),
							TextContent: c.String("text"),
							Span:        binding.Span{Start: c.Int("start"), End: c.Int("end")},
						})
					})
				},
			},
			{
				Name:      "edit",
				Usage:     "Change a variable's label and/or type",
				ArgsUsage: "[id]",
				Flags: append(refFlags(),
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true, Usage: "Variable key"},
					&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "New label"},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "New type: text|number|date"},
				),
				Action: func(c *cli.Context) error {
					var patch binding.Patch
					if c.IsSet("label") {
						label := c.String("label")
						patch.Label = &label
					}
					if c.IsSet("type") {
						typ := binding.VarType(c.String("type"))
						patch.Type = &typ
					}
					if patch.Label == nil && patch.Type == nil {
						return outputError(errors.NewInvalidRequest("give --label and/or --type"))
					}
					return withSession(c, db, func(mgr *binding.Manager, id string) (*ops.SessionChange, error) {
						return ops.SessionEdit(mgr, id, c.String("key"), patch)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a variable",
				ArgsUsage: "[id]",
				Flags: append(refFlags(),
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true, Usage: "Variable key"},
				),
				Action: func(c *cli.Context) error {
					return withSession(c, db, func(mgr *binding.Manager, id string) (*ops.SessionChange, error) {
						return ops.SessionDelete(mgr, id, c.String("key"))
					})
				},
			},
		},
	}
}

// generateCmd creates the generate command.
func generateCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Fill a template's variables and write the document",
		ArgsUsage: "[id]",
		Flags: append(refFlags(),
			&cli.StringSliceFlag{Name: "set", Aliases: []string{"s"}, Usage: "Value as key=value (repeatable)"},
			&cli.StringFlag{Name: "values", Usage: "YAML or JSON file of key: value pairs"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (default ~/.templar/outputs/<name>-<timestamp>.<ext>)"},
		),
		Action: func(c *cli.Context) error {
			values := map[string]string{}
			if path := c.String("values"); path != "" {
				loaded, err := loadValuesFile(path)
				if err != nil {
					return outputError(err)
				}
				values = loaded
			}
			for _, kv := range c.StringSlice("set") {
				key, value, ok := strings.Cut(kv, "=")
				if !ok || strings.TrimSpace(key) == "" {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("--set %q must be key=value", kv)))
				}
				values[strings.TrimSpace(key)] = value
			}

			ref := templateRef(c)
			output, err := ops.Generate(c.Context, db, cfg, ops.GenerateInput{
				ID:     ref.ID,
				Name:   ref.Name,
				Values: values,
				Path:   c.String("out"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List documents generated from a template",
		ArgsUsage: "[id]",
		Flags: append(refFlags(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Max results"},
		),
		Action: func(c *cli.Context) error {
			ref := templateRef(c)
			output, err := ops.History(c.Context, db, ops.HistoryInput{ID: ref.ID, Name: ref.Name, Limit: c.Int("limit")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a template",
		ArgsUsage: "[id]",
		Flags:     refFlags(),
		Action: func(c *cli.Context) error {
			ref := templateRef(c)
			output, err := ops.Delete(c.Context, db, ops.DeleteInput{ID: ref.ID, Name: ref.Name})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted templates",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	defaults := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: defaults.WebBind, Usage: "Address to bind (config: web_bind)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: defaults.WebPort, Usage: "Port (config: web_port)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := c.String("bind"), c.Int("port")
			if !c.IsSet("bind") && cfg.WebBind != "" {
				bind = cfg.WebBind
			}
			if !c.IsSet("port") && cfg.WebPort != 0 {
				port = cfg.WebPort
			}
			srv, err := web.NewServer(db, cfg, logger, Version, bind, port)
			if err != nil {
				return outputError(err)
			}
			if err := web.Run(srv, logger); err != nil && err != http.ErrServerClosed {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdinWithLimit reads stdin, failing with TEMPLATE_TOO_LARGE past max bytes.
func readStdinWithLimit(max int) ([]byte, error) {
	return readWithLimit(os.Stdin, max)
}

func readWithLimit(r io.Reader, max int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(max)+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if len(data) > max {
		return nil, errors.NewTemplateTooLarge(max, len(data))
	}
	return data, nil
}

func maxTemplateBytes(cfg *config.Config) int {
	if cfg != nil && cfg.MaxTemplateBytes > 0 {
		return cfg.MaxTemplateBytes
	}
	return config.DefaultConfig().MaxTemplateBytes
}

// loadValuesFile reads generation values from a YAML (or JSON) mapping.
// Scalars are kept as written, so 2024-03-04 stays a string.
func loadValuesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid values file: %v", err))
	}
	values := map[string]string{}
	if len(doc.Content) == 0 {
		return values, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.NewInvalidRequest("values file must be a mapping of key: value")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("value for %q must be a scalar", k.Value))
		}
		values[k.Value] = v.Value
	}
	return values, nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
