// Package sqlutil provides SQL identifier helpers.
package sqlutil

import "strings"

// QuoteIdentifier quotes a table or column name with backticks, escaping any
// backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}
