package warehouse

import (
	_ "embed"
	"fmt"
	"regexp"
)

//go:embed templates/promote.sql
var promoteTemplate string

var paramPattern = regexp.MustCompile(`%\((\w+)\)s`)

// renderTemplate substitutes percent-style parameters into a SQL
// template. A parameter referenced by the template but absent from the
// map is fatal before anything reaches the warehouse.
func renderTemplate(template string, params map[string]string) (string, error) {
	var missing []string
	rendered := paramPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := paramPattern.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template parameter %q not bound", missing[0])
	}
	return rendered, nil
}
