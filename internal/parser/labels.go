// Package parser turns untrusted generative-model text into typed values.
// Every parser has a fixed fallback and never returns an error.
package parser

import (
	"regexp"
	"strings"
)

var (
	fencePattern    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?\\s*```$")
	emphasisReplace = strings.NewReplacer("**", "", "__", "")
)

// ParseLabels finds the first line starting with "<Label>:" for each label.
// Labels that are missing or empty are absent from the result.
func ParseLabels(text string, labels ...string) map[string]string {
	values := make(map[string]string, len(labels))
	for _, label := range labels {
		pattern := regexp.MustCompile(`(?mi)^[ \t#>*-]*` + regexp.QuoteMeta(label) + `[ \t]*:[ \t]*(.*?)[ \t]*$`)
		for _, match := range pattern.FindAllStringSubmatch(stripEmphasis(text), -1) {
			value := strings.TrimSpace(match[1])
			if value != "" {
				values[label] = value
				break
			}
		}
	}
	return values
}

// ParseYesNo reports whether a label value answers yes.
func ParseYesNo(value string) bool {
	return strings.Contains(strings.ToLower(value), "yes")
}

// StripFences removes one surrounding markdown code fence, if present.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if match := fencePattern.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimSpace(match[1])
	}
	return trimmed
}

func stripEmphasis(text string) string {
	return emphasisReplace.Replace(text)
}

func cleanBullet(line string) string {
	line = strings.TrimSpace(stripEmphasis(line))
	line = strings.TrimLeft(line, "•*-–· \t")
	if i := strings.IndexAny(line, ".)"); i > 0 && i <= 2 && isDigits(line[:i]) && i+1 < len(line) && line[i+1] == ' ' {
		line = line[i+1:]
	}
	return strings.TrimSpace(line)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
