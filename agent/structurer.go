package agent

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

const stageStructurer = "query_structurer"

var (
	agePattern      = regexp.MustCompile(`(?i)(\d{1,3})[\s-]*(?:year|yr|y)s?[\s-]*old|(\d{1,3})\s*[MF]\b|(\d{1,3})[\s-]*(?:male|female)`)
	genderPattern   = regexp.MustCompile(`(?i)\b(male|female|man|woman)\b|\b([MF])\b`)
	locationPattern = regexp.MustCompile(`\b(?:in|In)\s+([A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*)`)
	durationPattern = regexp.MustCompile(`(?i)\b(\d+)[\s-]*(day|month|year)s?\b(?:[\s-]+old)?(?:[\s-]+insurance)?[\s-]+policy\b`)
)

// procedureKeywords is a fixed priority list; the first keyword found
// in the query wins.
var procedureKeywords = []string{
	"knee surgery", "heart surgery", "cancer treatment", "surgery",
	"operation", "treatment", "therapy", "procedure", "knee", "heart",
	"cancer", "diabetes", "hypertension",
}

// locationDenylist filters capitalized matches that are query terms
// rather than places.
var locationDenylist = []string{
	"surgery", "treatment", "policy", "male", "female", "year", "month",
}

// QueryStructurer extracts structured claim fields and search keywords
// from free-text queries. Every extractor is independent and
// best-effort; a miss leaves the field unset.
type QueryStructurer struct {
	logger *log.Logger
}

func NewQueryStructurer(logger *log.Logger) *QueryStructurer {
	if logger == nil {
		logger = log.Default()
	}
	return &QueryStructurer{logger: logger}
}

func (s *QueryStructurer) Structure(rec *StepRecorder, query string) (StructuredQuery, error) {
	rec.Record(stageStructurer, "parse_query",
		"Extracting structured information from natural language query",
		map[string]any{"query": query})

	structured := StructuredQuery{
		OriginalQuery:  query,
		SearchKeywords: []string{},
	}

	if age := extractAge(query); age != nil {
		structured.Age = age
	}
	structured.Gender = extractGender(query)
	structured.Procedure = extractProcedure(query)
	structured.Location = extractLocation(query)
	structured.PolicyDuration = extractPolicyDuration(query)

	if structured.Procedure != "" {
		structured.SearchKeywords = append(structured.SearchKeywords, structured.Procedure)
	}
	if structured.Location != "" {
		structured.SearchKeywords = append(structured.SearchKeywords, structured.Location)
	}
	if structured.Age != nil {
		structured.SearchKeywords = append(structured.SearchKeywords, fmt.Sprintf("age %d", *structured.Age))
	}
	if structured.PolicyDuration != nil {
		structured.SearchKeywords = append(structured.SearchKeywords,
			fmt.Sprintf("%d %s policy", structured.PolicyDuration.Value, structured.PolicyDuration.Unit))
	}

	if len(structured.SearchKeywords) > 0 {
		structured.SearchQuery = strings.Join(structured.SearchKeywords, " ")
	} else {
		// Nothing extracted: degrade to full-text search on the raw query.
		structured.SearchQuery = query
	}

	rec.Record(stageStructurer, "extract_structured_data",
		"Successfully extracted structured information from query",
		map[string]any{
			"structured_data": structured,
			"search_keywords": structured.SearchKeywords,
			"search_query":    structured.SearchQuery,
		})

	return structured, nil
}

func extractAge(query string) *int {
	match := agePattern.FindStringSubmatch(query)
	if match == nil {
		return nil
	}
	for _, group := range match[1:] {
		if group == "" {
			continue
		}
		age, err := strconv.Atoi(group)
		if err != nil {
			continue
		}
		return &age
	}
	return nil
}

func extractGender(query string) string {
	match := genderPattern.FindStringSubmatch(query)
	if match == nil {
		return ""
	}
	token := match[1]
	if token == "" {
		token = match[2]
	}
	switch strings.ToLower(token) {
	case "m", "male", "man":
		return GenderMale
	case "f", "female", "woman":
		return GenderFemale
	}
	return ""
}

func extractProcedure(query string) string {
	lowered := strings.ToLower(query)
	for _, keyword := range procedureKeywords {
		if strings.Contains(lowered, keyword) {
			return keyword
		}
	}
	return ""
}

func extractLocation(query string) string {
	match := locationPattern.FindStringSubmatch(query)
	if match == nil {
		return ""
	}
	location := strings.TrimSpace(match[1])
	lowered := strings.ToLower(location)
	for _, term := range locationDenylist {
		if strings.Contains(lowered, term) {
			return ""
		}
	}
	return location
}

func extractPolicyDuration(query string) *PolicyDuration {
	match := durationPattern.FindStringSubmatch(query)
	if match == nil {
		return nil
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &PolicyDuration{
		Value: value,
		Unit:  strings.ToLower(match[2]),
	}
}
