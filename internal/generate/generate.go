// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generate turns applicant inputs plus retrieved exemplars into a
// drafted Specific Aims section. The drafting model is behind the
// DraftBackend interface so tests can supply a mock and so Claude and
// OpenAI-compatible APIs stay interchangeable.
package generate

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// DraftBackend abstracts the drafting model API.
type DraftBackend interface {
	// Name identifies the backend ("claude", "openai", ...).
	Name() string

	// Draft sends the prompt and returns the model's markdown output.
	Draft(ctx context.Context, prompt string) (string, error)
}

// New selects a drafting backend from configuration.
func New(cfg types.GenerationConfig) (DraftBackend, error) {
	switch cfg.Backend {
	case types.GenClaude, "":
		return NewClaudeBackend(cfg), nil
	case types.GenOpenAI:
		return NewOpenAIBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unknown generation backend %q", cfg.Backend)
	}
}

// draftPromptTmpl is the prompt sent to the drafting model. The exemplars
// give the model the register and structure reviewers expect; the model is
// told to cite them by grant ID so provenance survives into the draft.
var draftPromptTmpl = template.Must(template.New("draft").Parse(`You are an experienced NIH grant writer. Draft a one-page Specific Aims section for a new application.

Applicant inputs:
- Topic: {{.Topic}}
{{- if .Hypothesis}}
- Central hypothesis: {{.Hypothesis}}
{{- end}}
{{- if .Aims}}
- Planned aims:
{{- range .Aims}}
  - {{.}}
{{- end}}
{{- end}}

Below are excerpts from funded applications on related topics. Imitate their structure and rhetorical moves (significance, gap, hypothesis, aims, payoff), not their science. When a sentence leans on an exemplar, cite it inline as [GRANT-ID].
{{range .Exemplars}}
--- Exemplar {{.GrantID}}: {{.Title}}{{if .Score}} (impact score {{.Score}}){{end}} ---
{{.Excerpt}}
{{end}}
Write the section in markdown. Open with a significance paragraph, state the hypothesis, give each aim a bold heading with two or three supporting sentences, and close with a payoff paragraph. Do not include any text outside the section itself.
`))

// promptData flattens a request and its exemplars for the template. Impact
// scores are pre-formatted so the template never sees a nil pointer.
type promptData struct {
	Topic      string
	Hypothesis string
	Aims       []string
	Exemplars  []promptExemplar
}

type promptExemplar struct {
	GrantID string
	Title   string
	Score   string
	Excerpt string
}

// renderPrompt executes the draft prompt template.
func renderPrompt(req types.DraftRequest, exemplars []types.Exemplar) (string, error) {
	data := promptData{
		Topic:      req.Topic,
		Hypothesis: req.Hypothesis,
		Aims:       req.Aims,
	}
	for _, ex := range exemplars {
		pe := promptExemplar{
			GrantID: ex.GrantID,
			Title:   ex.Title,
			Excerpt: ex.Excerpt,
		}
		if ex.ImpactScore != nil {
			pe.Score = fmt.Sprintf("%.0f", *ex.ImpactScore)
		}
		data.Exemplars = append(data.Exemplars, pe)
	}
	var buf bytes.Buffer
	if err := draftPromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering draft prompt: %w", err)
	}
	return buf.String(), nil
}

// Generate drafts a Specific Aims section from the request and the retrieved
// exemplars. Exemplars beyond the configured count are dropped; the rest go
// into the prompt in retrieval order.
func Generate(ctx context.Context, backend DraftBackend, req types.DraftRequest, exemplars []types.Exemplar, cfg types.GenerationConfig) (types.DraftResult, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return types.DraftResult{}, fmt.Errorf("draft request has no topic")
	}

	count := req.ExemplarCount
	if count <= 0 {
		count = cfg.ExemplarCount
	}
	if count <= 0 {
		count = 3
	}
	if len(exemplars) > count {
		exemplars = exemplars[:count]
	}

	prompt, err := renderPrompt(req, exemplars)
	if err != nil {
		return types.DraftResult{}, err
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	text, err := callWithRetry(ctx, backend, prompt, maxRetries)
	if err != nil {
		return types.DraftResult{}, fmt.Errorf("drafting: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return types.DraftResult{}, fmt.Errorf("backend %s returned an empty draft", backend.Name())
	}

	grantIDs := uniqueGrantIDs(exemplars)
	if len(grantIDs) > 0 {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n\n## Exemplars used\n\n")
		for _, id := range grantIDs {
			fmt.Fprintf(&b, "- [%s]\n", id)
		}
		text = b.String()
	}

	return types.DraftResult{
		Meta: types.DraftMeta{
			Topic:       req.Topic,
			Model:       cfg.Model,
			Backend:     backend.Name(),
			Exemplars:   grantIDs,
			GeneratedAt: time.Now().UTC(),
		},
		Text: text,
	}, nil
}

// uniqueGrantIDs returns the distinct grant IDs in retrieval order.
func uniqueGrantIDs(exemplars []types.Exemplar) []string {
	seen := make(map[string]bool, len(exemplars))
	var ids []string
	for _, ex := range exemplars {
		if !seen[ex.GrantID] {
			seen[ex.GrantID] = true
			ids = append(ids, ex.GrantID)
		}
	}
	return ids
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the drafting backend with exponential backoff.
func callWithRetry(ctx context.Context, backend DraftBackend, prompt string, maxRetries int) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := backend.Draft(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// WriteDraft persists a draft under the drafts directory with its metadata
// as YAML frontmatter, and records the path on the result.
func WriteDraft(result *types.DraftResult, layout types.Layout) error {
	if err := os.MkdirAll(layout.Drafts(), 0o755); err != nil {
		return fmt.Errorf("creating drafts directory: %w", err)
	}

	meta, err := yaml.Marshal(result.Meta)
	if err != nil {
		return fmt.Errorf("marshaling draft metadata: %w", err)
	}

	name := fmt.Sprintf("%s-%s.md", result.Meta.GeneratedAt.Format("20060102T150405"), slugify(result.Meta.Topic))
	path := filepath.Join(layout.Drafts(), name)

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	b.WriteString(result.Text)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing draft %s: %w", path, err)
	}
	result.Path = path
	return nil
}

// slugify reduces a topic to a short filename-safe slug.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// citationPattern matches inline citations: [R01-AI123456] or
// [R01-AI123456; R21-ES654321].
var citationPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// ValidateCitations scans draft text for inline grant citations and returns
// the IDs that are not in the known set, sorted. A clean draft returns nil.
func ValidateCitations(text string, known map[string]bool) []string {
	seen := make(map[string]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ";") {
			id := strings.TrimSpace(part)
			if id == "" || !isGrantCitation(id) {
				continue
			}
			if !known[id] && !seen[id] {
				seen[id] = true
			}
		}
	}

	var missing []string
	for id := range seen {
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return missing
}

// isGrantCitation checks whether bracketed text looks like a grant ID
// citation rather than a markdown link or other bracket content. Grant IDs
// are alphanumeric with hyphens and carry at least one letter and one digit.
func isGrantCitation(s string) bool {
	hasLetter := false
	hasDigit := false
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			hasLetter = true
		case c >= '0' && c <= '9':
			hasDigit = true
		case c == '-', c == '_':
			// allowed
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}
