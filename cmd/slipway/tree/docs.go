package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/doccheck"
	"github.com/slipway-dev/slipway/pkg/manifest"
)

var (
	DocsCmd = &cobra.Command{
		Use:   "docs",
		Short: "Check and render build documentation",
	}

	docsCheckCfg = &docsCheckConfig{}
	docsCheckCmd = &cobra.Command{
		Use:   "check [path ...]",
		Short: "Lint the project documentation",
		Long: "Check parses the configured markdown files and reports code fences\n" +
			"without a language, shell snippets that do not parse, and links or\n" +
			"anchors that point nowhere. Errors fail the command; warnings, such\n" +
			"as unreachable external links, are printed but do not.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			root, docs, err := docsSettings()
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				// Default paths are best effort; a project without a docs
				// directory is not a linting problem.
				for _, path := range docs.Paths {
					full := path
					if !filepath.IsAbs(full) {
						full = filepath.Join(root, path)
					}
					if found, _ := afero.Exists(fs, full); found {
						paths = append(paths, path)
					} else {
						slog.Debug("skipping missing docs path", "path", path)
					}
				}
				if len(paths) == 0 {
					cmd.Println("No documentation found.")
					return nil
				}
			}

			checker := doccheck.NewChecker(
				doccheck.WithRoot(root),
				doccheck.WithIgnore(docs.Ignore),
				doccheck.WithFenceLanguages(docs.FenceLanguages),
				doccheck.WithExternalLinks(docsCheckCfg.external || docs.ExternalLinks),
			)
			findings, err := checker.Check(cmd.Context(), paths)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if docsCheckCfg.jsonOut {
				if err = doccheck.WriteJSON(out, findings); err != nil {
					return err
				}
			} else {
				if err = doccheck.WriteText(out, findings); err != nil {
					return err
				}
			}

			if count := doccheck.ErrorCount(findings); count > 0 {
				return fmt.Errorf("%d documentation problems", count)
			}
			return nil
		},
	}

	docsShowCfg = &docsShowConfig{}
	docsShowCmd = &cobra.Command{
		Use:   "show <file>",
		Short: "Render a markdown file in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			content, err := afero.ReadFile(fs, args[0])
			if err != nil {
				return fmt.Errorf("unable to read %s: %w", args[0], err)
			}

			renderer, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(docsShowCfg.width),
			)
			if err != nil {
				return fmt.Errorf("unable to create renderer: %w", err)
			}
			rendered, err := renderer.Render(string(content))
			if err != nil {
				return fmt.Errorf("unable to render %s: %w", args[0], err)
			}
			cmd.Print(rendered)
			return nil
		},
	}
)

type docsCheckConfig struct {
	jsonOut  bool
	external bool
}

type docsShowConfig struct {
	width int
}

// docsSettings pulls the docs configuration from the manifest when there is
// one. docs check is useful in any repository, so a missing manifest just
// means defaults.
func docsSettings() (string, *manifest.DocsBlock, error) {
	m, root, err := loadManifest()
	if errors.Is(err, manifest.ErrNoManifest) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", nil, fmt.Errorf("unable to get working directory: %w", err)
		}
		return cwd, &manifest.DocsBlock{Paths: []string{"README.md", "docs"}}, nil
	}
	if err != nil {
		return "", nil, err
	}
	return root, m.Docs, nil
}

func init() {
	docsCheckCmd.Flags().BoolVar(&docsCheckCfg.jsonOut, "json", false,
		"Emit findings as JSON instead of one line each.")

	docsCheckCmd.Flags().BoolVar(&docsCheckCfg.external, "external", false,
		"Also check that external http(s) links respond.")

	docsShowCmd.Flags().IntVar(&docsShowCfg.width, "width", 100,
		"Wrap rendered output at this many columns.")

	DocsCmd.AddCommand(docsCheckCmd)
	DocsCmd.AddCommand(docsShowCmd)
}
