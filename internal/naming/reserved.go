package naming

import "strings"

// graphqlReservedWords are the GraphQL keywords, built-in scalars, and
// literals that cannot serve as generated type or field names.
var graphqlReservedWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	"int":     true,
	"float":   true,
	"string":  true,
	"boolean": true,
	"id":      true,

	"true":  true,
	"false": true,
	"null":  true,
}

func isReserved(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "__") {
		return true
	}
	return graphqlReservedWords[lower]
}
