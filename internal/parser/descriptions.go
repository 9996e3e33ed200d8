package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	descriptionHeaderPattern = regexp.MustCompile(`(?i)PRODUCT\s+(\d+)\s+DESCRIPTION\s*:`)
	topRecommendationsHeader = regexp.MustCompile(`(?i)TOP\s+RECOMMENDATIONS\s*:`)
)

// ProductDescriptions is the parsed form of the per-product description call.
type ProductDescriptions struct {
	Descriptions       map[int]string
	TopRecommendations string
}

// ParseDescriptions splits "PRODUCT N DESCRIPTION:" blocks and the trailing
// "TOP RECOMMENDATIONS:" block. Missing blocks are simply absent.
func ParseDescriptions(text string) ProductDescriptions {
	text = stripEmphasis(text)
	result := ProductDescriptions{Descriptions: make(map[int]string)}

	body := text
	if loc := topRecommendationsHeader.FindStringIndex(text); loc != nil {
		body = text[:loc[0]]
		result.TopRecommendations = strings.TrimSpace(text[loc[1]:])
	}

	headers := descriptionHeaderPattern.FindAllStringSubmatchIndex(body, -1)
	for i, header := range headers {
		index, err := strconv.Atoi(body[header[2]:header[3]])
		if err != nil {
			continue
		}
		end := len(body)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		description := strings.TrimSpace(strings.Trim(strings.TrimSpace(body[header[1]:end]), "#"))
		if description == "" {
			continue
		}
		if _, seen := result.Descriptions[index]; !seen {
			result.Descriptions[index] = description
		}
	}

	return result
}
