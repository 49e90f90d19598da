package doccheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"mvdan.cc/sh/v3/syntax"
)

var markdown = goldmark.New()

// Fence languages whose content is shell and can be syntax-checked.
var shellFences = map[string]bool{
	"bash":          true,
	"sh":            true,
	"shell":         true,
	"console":       true,
	"terminal":      true,
	"shell-session": true,
}

// Fence languages that are transcripts by definition: prompts plus output.
var transcriptFences = map[string]bool{
	"console":       true,
	"terminal":      true,
	"shell-session": true,
}

func (c *Checker) checkFile(ctx context.Context, path string) ([]Finding, error) {
	source, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	rel := c.rel(path)
	doc := markdown.Parser().Parse(text.NewReader(source))

	findings := []Finding{}
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			findings = append(findings, c.checkFence(rel, source, node)...)
		case *ast.Link:
			linkFindings, err := c.checkTarget(ctx, path, rel, source, node, string(node.Destination), true)
			if err != nil {
				return ast.WalkStop, err
			}
			findings = append(findings, linkFindings...)
		case *ast.Image:
			imageFindings, err := c.checkTarget(ctx, path, rel, source, node, string(node.Destination), false)
			if err != nil {
				return ast.WalkStop, err
			}
			findings = append(findings, imageFindings...)
		case *ast.AutoLink:
			if node.AutoLinkType != ast.AutoLinkURL {
				break
			}
			autoFindings, err := c.checkTarget(ctx, path, rel, source, node, string(node.URL(source)), false)
			if err != nil {
				return ast.WalkStop, err
			}
			findings = append(findings, autoFindings...)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

func (c *Checker) checkFence(rel string, source []byte, node *ast.FencedCodeBlock) []Finding {
	findings := []Finding{}

	contentLine := 0
	if node.Lines().Len() > 0 {
		contentLine = lineOf(source, node.Lines().At(0).Start)
	}

	lang := string(node.Language(source))
	if lang == "" {
		line := 0
		if contentLine > 0 {
			// The opening fence sits on the line before the content.
			line = contentLine - 1
		}
		findings = append(findings, Finding{
			File:     rel,
			Line:     line,
			Rule:     RuleFenceLanguage,
			Message:  "code fence has no language",
			Severity: SeverityError,
		})
		return findings
	}

	if len(c.fenceLangs) > 0 && !slices.Contains(c.fenceLangs, lang) {
		line := 0
		if contentLine > 0 {
			line = contentLine - 1
		}
		findings = append(findings, Finding{
			File:     rel,
			Line:     line,
			Rule:     RuleFenceLanguage,
			Message:  fmt.Sprintf("fence language %q is not in the allowed set (%s)", lang, strings.Join(c.fenceLangs, ", ")),
			Severity: SeverityError,
		})
	}

	if !shellFences[lang] {
		return findings
	}

	content := &bytes.Buffer{}
	for i := 0; i < node.Lines().Len(); i++ {
		segment := node.Lines().At(i)
		content.Write(segment.Value(source))
	}

	script := shellScript(lang, content.String())
	if strings.TrimSpace(script) == "" {
		return findings
	}

	if err := parseShell(lang, script); err != nil {
		line := contentLine
		var parseErr syntax.ParseError
		if errors.As(err, &parseErr) {
			line = contentLine + int(parseErr.Pos.Line()) - 1
		}
		findings = append(findings, Finding{
			File:     rel,
			Line:     line,
			Rule:     RuleShellSyntax,
			Message:  fmt.Sprintf("invalid %s syntax: %v", lang, err),
			Severity: SeverityError,
		})
	}
	return findings
}

func parseShell(lang, script string) error {
	variant := syntax.LangBash
	if lang == "sh" {
		variant = syntax.LangPOSIX
	}
	parser := syntax.NewParser(syntax.Variant(variant))
	_, err := parser.Parse(strings.NewReader(script), "")
	return err
}

// shellScript returns the checkable script inside a fence. Transcripts mix
// commands and output; only "$ " or "# " prompt lines and their backslash
// continuations are commands. Authors write transcripts in bash fences too,
// so a leading "$ " prompt switches any shell fence into transcript mode.
func shellScript(lang, content string) string {
	lines := strings.Split(content, "\n")

	transcript := transcriptFences[lang]
	if !transcript {
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			transcript = strings.HasPrefix(trimmed, "$ ")
			break
		}
		if !transcript {
			return content
		}
	}

	sb := &strings.Builder{}
	continuing := false
	for _, line := range lines {
		if continuing {
			sb.WriteString(line)
			sb.WriteByte('\n')
			continuing = strings.HasSuffix(strings.TrimRight(line, " \t"), "\\")
			continue
		}
		prompt := strings.TrimLeft(line, " \t")
		command, found := strings.CutPrefix(prompt, "$ ")
		if !found {
			command, found = strings.CutPrefix(prompt, "# ")
		}
		if !found {
			continue
		}
		sb.WriteString(command)
		sb.WriteByte('\n')
		continuing = strings.HasSuffix(strings.TrimRight(command, " \t"), "\\")
	}
	return sb.String()
}

func (c *Checker) checkTarget(ctx context.Context, path, rel string, source []byte, node ast.Node, dest string, checkAnchor bool) ([]Finding, error) {
	parsed, err := url.Parse(dest)
	if err != nil {
		// Unparseable destinations are left alone.
		return nil, nil
	}
	if parsed.Scheme != "" {
		if c.external && (parsed.Scheme == "http" || parsed.Scheme == "https") {
			return c.checkExternal(ctx, rel, source, node, dest), nil
		}
		return nil, nil
	}

	target := parsed.Path
	fragment := strings.ToLower(parsed.Fragment)
	line := nodeLine(node, source)

	if target == "" {
		if fragment == "" || !checkAnchor {
			return nil, nil
		}
		anchors, err := c.anchorsFor(path)
		if err != nil {
			return nil, err
		}
		if !anchors[fragment] {
			return []Finding{{
				File:     rel,
				Line:     line,
				Rule:     RuleLinkAnchor,
				Message:  fmt.Sprintf("no heading for anchor #%s", parsed.Fragment),
				Severity: SeverityError,
			}}, nil
		}
		return nil, nil
	}

	resolved := filepath.Join(filepath.Dir(path), filepath.FromSlash(target))
	if strings.HasPrefix(target, "/") {
		// Leading-slash links resolve against the repository root.
		resolved = filepath.Join(c.root, filepath.FromSlash(target))
	}

	exists, err := afero.Exists(c.fs, resolved)
	if err != nil {
		return nil, fmt.Errorf("unable to stat %s: %w", resolved, err)
	}
	if !exists {
		return []Finding{{
			File:     rel,
			Line:     line,
			Rule:     RuleLinkTarget,
			Message:  fmt.Sprintf("link target does not exist: %s", target),
			Severity: SeverityError,
		}}, nil
	}

	if checkAnchor && fragment != "" && isMarkdown(resolved) {
		anchors, err := c.anchorsFor(resolved)
		if err != nil {
			return nil, err
		}
		if !anchors[fragment] {
			return []Finding{{
				File:     rel,
				Line:     line,
				Rule:     RuleLinkAnchor,
				Message:  fmt.Sprintf("no heading for anchor %s#%s", target, parsed.Fragment),
				Severity: SeverityError,
			}}, nil
		}
	}
	return nil, nil
}

// checkExternal fetches an http(s) link target and reports anything other
// than a 2xx or 3xx answer. Verdicts are cached per URL.
func (c *Checker) checkExternal(ctx context.Context, rel string, source []byte, node ast.Node, dest string) []Finding {
	verdict, cached := c.verdicts[dest]
	if !cached {
		verdict = c.fetch(ctx, dest)
		c.verdicts[dest] = verdict
	}
	if verdict == "" {
		return nil
	}
	return []Finding{{
		File:     rel,
		Line:     nodeLine(node, source),
		Rule:     RuleLinkExternal,
		Message:  verdict,
		Severity: SeverityWarning,
	}}
}

func (c *Checker) fetch(ctx context.Context, dest string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dest, nil)
	if err != nil {
		return fmt.Sprintf("unable to request %s: %v", dest, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Sprintf("unable to fetch %s: %v", dest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Sprintf("%s returned %s", dest, resp.Status)
	}
	return ""
}

func (c *Checker) anchorsFor(path string) (map[string]bool, error) {
	clean := filepath.Clean(path)
	if anchors, found := c.anchors[clean]; found {
		return anchors, nil
	}

	source, err := afero.ReadFile(c.fs, clean)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", clean, err)
	}
	doc := markdown.Parser().Parse(text.NewReader(source))

	counts := map[string]int{}
	anchors := map[string]bool{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			slug := slugify(textOf(heading, source))
			if seen := counts[slug]; seen > 0 {
				anchors[fmt.Sprintf("%s-%d", slug, seen)] = true
			} else {
				anchors[slug] = true
			}
			counts[slug]++
		}
		return ast.WalkContinue, nil
	})

	c.anchors[clean] = anchors
	return anchors, nil
}

func textOf(n ast.Node, source []byte) string {
	sb := &strings.Builder{}
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if textNode, ok := child.(*ast.Text); ok {
				sb.Write(textNode.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// slugify turns heading text into a GitHub-style anchor.
func slugify(heading string) string {
	sb := &strings.Builder{}
	for _, r := range strings.ToLower(strings.TrimSpace(heading)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteByte('-')
		case r == '-' || r == '_':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func nodeLine(n ast.Node, source []byte) int {
	if child := n.FirstChild(); child != nil {
		if textNode, ok := child.(*ast.Text); ok {
			return lineOf(source, textNode.Segment.Start)
		}
	}
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Type() == ast.TypeBlock && cur.Lines().Len() > 0 {
			return lineOf(source, cur.Lines().At(0).Start)
		}
	}
	return 0
}

func lineOf(source []byte, offset int) int {
	if offset > len(source) {
		offset = len(source)
	}
	return bytes.Count(source[:offset], []byte("\n")) + 1
}
