package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/leadsim/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	userResponseRegex       = regexp.MustCompile(`(?i)</?\s*user-response\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const (
	maxResponseRunes = 10000
	maxRecentRunes   = 600
	defaultObjective = "effective leadership communication"
)

// PromptVariant represents an evaluation prompt variant.
type PromptVariant string

const (
	// PromptStrict holds responses to a demanding standard.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default evaluation variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient favours encouragement for first-time learners.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// EvalData holds template data for evaluation prompts.
type EvalData struct {
	ScenarioTitle string
	ScenarioText  string
	Objectives    string
	UserName      string
	Response      string
	Scored        bool
}

// RecentResponse summarises one earlier answer for adaptive scenario generation.
type RecentResponse struct {
	Title       string
	Response    string
	Suggestions string
}

// AdaptiveData holds template data for adaptive scenario prompts.
type AdaptiveData struct {
	ScenarioTitle string
	Objectives    string
	UserName      string
	Recent        []RecentResponse
}

// Builder renders prompts from parsed templates.
type Builder struct {
	eval     map[PromptVariant]*template.Template
	adaptive *template.Template
}

// Default returns a Builder over the embedded templates.
func Default() (*Builder, error) {
	return Load(templateFS)
}

// Load parses eval_<variant>.txt and adaptive.txt from the templates
// directory of fsys.
func Load(fsys fs.FS) (*Builder, error) {
	b := &Builder{eval: make(map[PromptVariant]*template.Template)}

	for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
		tmpl, err := parseFile(fsys, "templates/eval_"+string(v)+".txt")
		if err != nil {
			return nil, err
		}
		b.eval[v] = tmpl
	}

	tmpl, err := parseFile(fsys, "templates/adaptive.txt")
	if err != nil {
		return nil, err
	}
	b.adaptive = tmpl
	return b, nil
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildEvalPrompt builds an evaluation prompt using the specified variant.
func (b *Builder) BuildEvalPrompt(variant PromptVariant, sc model.Scenario, response, userName string, scored bool) (string, error) {
	tmpl, ok := b.eval[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := EvalData{
		ScenarioTitle: sc.Title,
		ScenarioText:  strings.TrimSpace(sc.Text),
		Objectives:    objectivesText(sc.LearningObjectives),
		UserName:      strings.TrimSpace(userName),
		Response:      sanitizeResponse(response, maxResponseRunes),
		Scored:        scored,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildAdaptivePrompt builds a prompt asking for a personalised scenario
// that targets the weaknesses seen in recent entries.
func (b *Builder) BuildAdaptivePrompt(sc model.Scenario, recent []model.Entry, userName string) (string, error) {
	data := AdaptiveData{
		ScenarioTitle: sc.Title,
		Objectives:    objectivesText(sc.LearningObjectives),
		UserName:      strings.TrimSpace(userName),
	}
	for _, e := range recent {
		data.Recent = append(data.Recent, RecentResponse{
			Title:       e.Response.ScenarioTitle,
			Response:    sanitizeResponse(e.Response.Text, maxRecentRunes),
			Suggestions: strings.TrimSpace(e.Evaluation.Suggestions),
		})
	}

	var buf bytes.Buffer
	if err := b.adaptive.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func objectivesText(objectives []string) string {
	var kept []string
	for _, o := range objectives {
		if o = strings.TrimSpace(o); o != "" {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		return defaultObjective
	}
	return strings.Join(kept, ", ")
}

func sanitizeResponse(response string, limit int) string {
	response = userResponseRegex.ReplaceAllString(response, "")
	response = systemInstructionsRegex.ReplaceAllString(response, "")
	response = strings.TrimSpace(response)

	if response == "" {
		return "[No response provided]"
	}

	if utf8.RuneCountInString(response) > limit {
		runes := []rune(response)
		response = string(runes[:limit]) + "\n\n[Response truncated due to length]"
	}

	return response
}
