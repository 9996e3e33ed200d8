package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"shopping-assistant-pipeline/internal/models"
)

// SpecLayer names the cascade layer that produced a specification.
type SpecLayer string

const (
	LayerJSON     SpecLayer = "json"
	LayerRepaired SpecLayer = "repaired"
	LayerRegex    SpecLayer = "regex"
	LayerDefault  SpecLayer = "default"
)

var (
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	quotedItemPattern    = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|'([^']*)'`)
	summaryPattern       = regexp.MustCompile(`(?s)["']?summary["']?\s*:\s*(?:"((?:[^"\\]|\\.)*)"|'([^']*)')`)
	listKeyPatterns      = map[string]*regexp.Regexp{}
)

var listKeys = []string{models.SpecKeyFeatures, models.SpecPros, models.SpecCons}

func init() {
	for _, key := range listKeys {
		listKeyPatterns[key] = regexp.MustCompile(`(?s)["']?` + key + `["']?\s*:\s*\[(.*?)\]`)
	}
}

// ParseSpecification runs the layered cascade: strict JSON, repaired JSON,
// per-key regex extraction, then the default block. The result always has
// all four fields populated.
func ParseSpecification(text string) (models.Specification, SpecLayer) {
	cleaned := StripFences(text)

	if spec, err := decodeSpecification(cleaned); err == nil {
		return spec, LayerJSON
	}

	if spec, err := decodeSpecification(repairJSON(cleaned)); err == nil {
		return spec, LayerRepaired
	}

	if spec, ok := extractSpecification(cleaned); ok {
		return spec, LayerRegex
	}

	return models.DefaultSpecification(), LayerDefault
}

func decodeSpecification(text string) (models.Specification, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return models.Specification{}, err
	}
	if raw == nil {
		return models.Specification{}, fmt.Errorf("specification is not an object")
	}

	spec := models.Specification{
		KeyFeatures: decodeList(raw[models.SpecKeyFeatures]),
		Pros:        decodeList(raw[models.SpecPros]),
		Cons:        decodeList(raw[models.SpecCons]),
		Summary:     decodeText(raw[models.SpecSummary]),
	}
	spec.Normalize()
	return spec, nil
}

// decodeList accepts a list of scalars or a single scalar.
func decodeList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		if text := decodeText(raw); text != "" {
			return []string{text}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if s, ok := item.(string); ok {
			out = append(out, strings.TrimSpace(s))
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func decodeText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

// repairJSON isolates the first top-level object and fixes the common
// model mistakes: single quotes, bare keys and trailing commas.
func repairJSON(text string) string {
	if candidates := findObjectCandidates(text); len(candidates) > 0 {
		text = candidates[0]
	}
	text = strings.ReplaceAll(text, "'", `"`)
	text = bareKeyPattern.ReplaceAllString(text, `$1"$2":`)
	text = trailingCommaPattern.ReplaceAllString(text, "$1")
	return text
}

// findObjectCandidates returns every balanced top-level {...} span, skipping
// braces inside double-quoted strings.
func findObjectCandidates(s string) []string {
	var candidates []string
	depth, start := 0, -1
	inString, escape := false, false

	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}

// extractSpecification pulls each key independently. It reports false when
// no key could be located at all.
func extractSpecification(text string) (models.Specification, bool) {
	found := false
	lists := make(map[string][]string, len(listKeys))

	for _, key := range listKeys {
		match := listKeyPatterns[key].FindStringSubmatch(text)
		if match == nil {
			continue
		}
		found = true
		lists[key] = splitListBody(match[1])
	}

	var summary string
	if match := summaryPattern.FindStringSubmatch(text); match != nil {
		found = true
		summary = strings.TrimSpace(match[1] + match[2])
	}

	spec := models.Specification{
		KeyFeatures: lists[models.SpecKeyFeatures],
		Pros:        lists[models.SpecPros],
		Cons:        lists[models.SpecCons],
		Summary:     summary,
	}
	spec.Normalize()
	return spec, found
}

func splitListBody(body string) []string {
	var items []string
	for _, match := range quotedItemPattern.FindAllStringSubmatch(body, -1) {
		item := strings.TrimSpace(match[1] + match[2])
		if item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		return items
	}
	for _, part := range strings.Split(body, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}
