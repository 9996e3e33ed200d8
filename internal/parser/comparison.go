package parser

import (
	"strings"
)

type ComparisonSections struct {
	KeyFeatures []string
	Pros        []string
	Cons        []string
}

// ParseComparison reads the "Key Features:", "Pros:" and "Cons:" bullet
// sections. Text before the first header is ignored.
func ParseComparison(text string) ComparisonSections {
	var sections ComparisonSections
	var current *[]string

	for _, line := range strings.Split(text, "\n") {
		cleaned := cleanBullet(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if cleaned == "" {
			continue
		}

		header, rest, isHeader := splitHeader(cleaned)
		if isHeader {
			switch header {
			case "key features", "features":
				current = &sections.KeyFeatures
			case "pros":
				current = &sections.Pros
			case "cons":
				current = &sections.Cons
			}
			if rest != "" && current != nil {
				*current = append(*current, rest)
			}
			continue
		}

		if current != nil {
			*current = append(*current, cleaned)
		}
	}

	return sections
}

func splitHeader(line string) (string, string, bool) {
	name, rest, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	switch key := strings.ToLower(strings.TrimSpace(name)); key {
	case "key features", "features", "pros", "cons":
		return key, strings.TrimSpace(rest), true
	}
	return "", "", false
}
