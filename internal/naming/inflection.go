package naming

import "github.com/jinzhu/inflection"

// Pluralize converts a singular word to its plural form, honoring configured
// overrides before falling back to the inflection rules.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form, honoring
// configured overrides before falling back to the inflection rules.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}
