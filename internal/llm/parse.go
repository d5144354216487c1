package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/leadsim/internal/model"
)

// Placeholders used when a reply yields no usable text.
const (
	DefaultStrengths   = "Response received. Thank you for engaging with this scenario."
	DefaultSuggestions = "Continue practicing your leadership communication skills."
)

const (
	minParagraphLen   = 50
	fallbackStrengths = 200
)

var (
	// A section marker either starts a line, in any case and with optional
	// markdown or list decoration, ending with a colon or the end of the line,
	// or is an uppercase label followed by a colon anywhere in the text.
	markerRegex    = regexp.MustCompile(`(?m)(?:^[ \t>#*_\-\d.)]*(?i:(strengths?|suggestions?|score))\b[ \t*_]*(?::|$)|\b(STRENGTHS?|SUGGESTIONS?|SCORE)[ \t*_]*:)[ \t*_]*`)
	scoreRegex     = regexp.MustCompile(`(?i)\bscore\b[\s*_#:=\-]*(\d+(?:\.\d+)?)(?:\s*(?:/\s*5|out\s+of\s+5|stars?))?`)
	headingRegex   = regexp.MustCompile(`(?m)^[ \t]*#+[ \t]*`)
	emphasisRegex  = regexp.MustCompile(`\*+`)
	paragraphRegex = regexp.MustCompile(`\n[ \t]*\n`)
	codeFenceRegex = regexp.MustCompile("```[a-zA-Z]*")
)

// ParsedReply is the structured content of a generation service reply.
type ParsedReply struct {
	Strengths   string
	Suggestions string
	Score       *float64
	// Malformed is set when an expected section marker was missing and
	// fallback extraction supplied the text.
	Malformed bool
}

// ParseReply extracts strengths, suggestions and an optional score from a
// free-text reply. It never fails: missing sections are filled from the
// reply's paragraphs or from fixed placeholders.
func ParseReply(raw string) ParsedReply {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.TrimSpace(codeFenceRegex.ReplaceAllString(text, ""))

	if p, ok := parseJSONReply(text); ok {
		return p
	}

	sections := splitSections(text)
	out := ParsedReply{
		Strengths:   sections["strengths"].body,
		Suggestions: sections["suggestions"].body,
	}
	// A score mentioned in prose must not override the SCORE section.
	if sc, ok := sections["score"]; ok {
		out.Score = parseScore(sc.raw)
	} else {
		out.Score = parseScore(text)
	}

	if out.Strengths == "" || out.Suggestions == "" {
		out.Malformed = true
		paras := paragraphs(text)
		if out.Strengths == "" {
			out.Strengths = fallbackStrengthsText(text, paras)
		}
		if out.Suggestions == "" {
			out.Suggestions = fallbackSuggestionsText(paras)
		}
	}
	return out
}

// section is one marker-delimited block of a reply.
type section struct {
	// raw spans the marker and its block.
	raw string
	// body is the cleaned block without the marker.
	body string
}

// splitSections returns the block following the first occurrence of each
// marker, up to the next marker.
func splitSections(text string) map[string]section {
	sections := make(map[string]section)
	locs := markerRegex.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		// The label is in whichever marker form matched.
		from, to := loc[2], loc[3]
		if from < 0 {
			from, to = loc[4], loc[5]
		}
		label := strings.ToLower(text[from:to])
		switch label {
		case "strength":
			label = "strengths"
		case "suggestion":
			label = "suggestions"
		}
		if _, seen := sections[label]; seen {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[label] = section{raw: text[loc[0]:end], body: cleanBlock(text[loc[1]:end])}
	}
	return sections
}

func parseScore(text string) *float64 {
	m := scoreRegex.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return model.Float(model.ClampScore(v))
}

// cleanBlock strips markdown emphasis and heading markers.
func cleanBlock(s string) string {
	s = headingRegex.ReplaceAllString(s, "")
	s = emphasisRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// paragraphs returns the cleaned blank-line-delimited blocks longer than
// minParagraphLen characters.
func paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphRegex.Split(text, -1) {
		p = cleanBlock(p)
		if utf8.RuneCountInString(p) > minParagraphLen {
			out = append(out, p)
		}
	}
	return out
}

func fallbackStrengthsText(text string, paras []string) string {
	if len(paras) > 0 {
		return paras[0]
	}
	s := cleanBlock(text)
	if utf8.RuneCountInString(s) > fallbackStrengths {
		s = strings.TrimSpace(string([]rune(s)[:fallbackStrengths]))
	}
	if s == "" {
		return DefaultStrengths
	}
	return s
}

func fallbackSuggestionsText(paras []string) string {
	switch {
	case len(paras) >= 2:
		return paras[1]
	case len(paras) == 1:
		return paras[0]
	default:
		return DefaultSuggestions
	}
}

type jsonReply struct {
	Score       any    `json:"score"`
	Strengths   string `json:"strengths"`
	Feedback    string `json:"feedback"`
	Suggestions string `json:"suggestions"`
}

// parseJSONReply accepts replies written as a JSON object instead of the
// labelled sections.
func parseJSONReply(text string) (ParsedReply, bool) {
	if !strings.HasPrefix(text, "{") {
		return ParsedReply{}, false
	}
	var r jsonReply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return ParsedReply{}, false
	}
	strengths := strings.TrimSpace(r.Strengths)
	if strengths == "" {
		strengths = strings.TrimSpace(r.Feedback)
	}
	suggestions := strings.TrimSpace(r.Suggestions)
	score := jsonScore(r.Score)
	if strengths == "" && suggestions == "" && score == nil {
		return ParsedReply{}, false
	}

	out := ParsedReply{Strengths: strengths, Suggestions: suggestions, Score: score}
	if out.Strengths == "" {
		out.Strengths = DefaultStrengths
		out.Malformed = true
	}
	if out.Suggestions == "" {
		out.Suggestions = DefaultSuggestions
		out.Malformed = true
	}
	return out, true
}

func jsonScore(v any) *float64 {
	switch v := v.(type) {
	case float64:
		return model.Float(model.ClampScore(v))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return model.Float(model.ClampScore(f))
		}
	}
	return nil
}
