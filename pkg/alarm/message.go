package alarm

import (
	"fmt"
	"strconv"
	"strings"
)

// renderTemplate fills message_template's {value}/{limit}/{point_name}
// placeholders. Unknown placeholders are left intact.
func renderTemplate(template string, value, limit float64, pointName string) string {
	r := strings.NewReplacer(
		"{value}", strconv.FormatFloat(value, 'g', -1, 64),
		"{limit}", strconv.FormatFloat(limit, 'g', -1, 64),
		"{point_name}", pointName,
	)
	return r.Replace(template)
}

func defaultMessage(ruleName string, value float64, level string) string {
	return fmt.Sprintf("%s: value %g crossed %s", ruleName, value, level)
}
