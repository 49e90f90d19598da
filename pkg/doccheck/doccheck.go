// Package doccheck lints build documentation. It keeps the promises docs
// make to readers: shell snippets must parse, links must point at files
// that exist, and anchors must point at headings that exist. Docs rot
// silently; this makes the rot loud.
package doccheck

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Rule names attached to findings.
const (
	RuleFenceLanguage = "fence-language"
	RuleShellSyntax   = "shell-syntax"
	RuleLinkTarget    = "link-target"
	RuleLinkAnchor    = "link-anchor"
	RuleLinkExternal  = "link-external"
)

// Finding severities. Errors fail the check; warnings are printed but do
// not. External links get warnings because a remote 404 is often the
// remote's fault, not the document's.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding is one problem in one file. Line may be zero when the position
// could not be pinned down.
type Finding struct {
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (f Finding) String() string {
	severity := ""
	if f.Severity == SeverityWarning {
		severity = "warning: "
	}
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d: %s[%s] %s", f.File, f.Line, severity, f.Rule, f.Message)
	}
	return fmt.Sprintf("%s: %s[%s] %s", f.File, severity, f.Rule, f.Message)
}

// ErrorCount reports how many findings are errors rather than warnings.
func ErrorCount(findings []Finding) int {
	count := 0
	for _, finding := range findings {
		if finding.Severity != SeverityWarning {
			count++
		}
	}
	return count
}

// Checker walks markdown files and collects findings.
type Checker struct {
	fs         afero.Fs
	root       string
	ignore     []string
	fenceLangs []string
	external   bool
	client     *http.Client

	// anchors caches heading slugs per file, since link targets are
	// often shared between many source files.
	anchors map[string]map[string]bool

	// verdicts caches external URL failures so a URL repeated across
	// files costs one request. Empty string means reachable.
	verdicts map[string]string
}

type CheckerOpt func(*Checker)

func WithFS(fsys afero.Fs) CheckerOpt {
	return func(c *Checker) {
		c.fs = fsys
	}
}

// WithRoot sets the directory paths are resolved against. Findings are
// reported relative to it.
func WithRoot(root string) CheckerOpt {
	return func(c *Checker) {
		c.root = root
	}
}

// WithIgnore adds glob patterns for paths to skip. A pattern ending in
// "/**" skips a whole subtree.
func WithIgnore(patterns []string) CheckerOpt {
	return func(c *Checker) {
		c.ignore = patterns
	}
}

// WithFenceLanguages restricts fence info strings to the given set. With
// no set, any non-empty info string passes.
func WithFenceLanguages(langs []string) CheckerOpt {
	return func(c *Checker) {
		c.fenceLangs = langs
	}
}

// WithExternalLinks turns on GET checks for http(s) link targets.
func WithExternalLinks(enabled bool) CheckerOpt {
	return func(c *Checker) {
		c.external = enabled
	}
}

func WithHTTPClient(client *http.Client) CheckerOpt {
	return func(c *Checker) {
		c.client = client
	}
}

func NewChecker(opts ...CheckerOpt) *Checker {
	c := &Checker{
		fs:       afero.NewOsFs(),
		root:     ".",
		client:   &http.Client{Timeout: 10 * time.Second},
		anchors:  map[string]map[string]bool{},
		verdicts: map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check lints the given paths, each a file or directory relative to the
// checker's root. Findings come back sorted by file and line.
func (c *Checker) Check(ctx context.Context, paths []string) ([]Finding, error) {
	files, err := c.collect(paths)
	if err != nil {
		return nil, err
	}

	findings := []Finding{}
	for _, file := range files {
		fileFindings, err := c.checkFile(ctx, file)
		if err != nil {
			return nil, err
		}
		findings = append(findings, fileFindings...)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].Rule < findings[j].Rule
	})
	return findings, nil
}

func (c *Checker) collect(paths []string) ([]string, error) {
	files := []string{}
	for _, path := range paths {
		full := path
		if !filepath.IsAbs(full) {
			full = filepath.Join(c.root, path)
		}

		info, err := c.fs.Stat(full)
		if err != nil {
			return nil, fmt.Errorf("unable to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			if !c.ignored(full) {
				files = append(files, full)
			}
			continue
		}

		err = afero.Walk(c.fs, full, func(walkPath string, walkInfo os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if walkInfo.IsDir() {
				if c.ignored(walkPath) {
					return filepath.SkipDir
				}
				return nil
			}
			if !isMarkdown(walkPath) || c.ignored(walkPath) {
				return nil
			}
			files = append(files, walkPath)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("unable to walk %s: %w", path, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Checker) ignored(path string) bool {
	rel := c.rel(path)
	for _, pattern := range c.ignore {
		if matched, err := filepath.Match(pattern, rel); err == nil && matched {
			return true
		}
		if prefix, found := strings.CutSuffix(pattern, "/**"); found {
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
	}
	return false
}

func (c *Checker) rel(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return path
	}
	return rel
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
