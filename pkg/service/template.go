package service

import (
	"strings"
	"time"
)

// TodayToken is the literal argument replaced by the run's bound date.
const TodayToken = "today"

const (
	compactDateLayout = "20060102"
	isoDateLayout     = "2006-01-02"
)

// ResolveArgs expands an argument template for the given bound date.
//
// A literal "today" argument becomes the date as YYYYMMDD. Inside any
// argument, {date} and {date_iso} expand to the date and {name} expands to
// vars[name]. A flag ("--x") whose value resolves to the empty string is
// dropped together with its value.
func ResolveArgs(args []string, vars map[string]string, date time.Time) []string {
	pairs := make([]string, 0, 2*len(vars)+4)
	pairs = append(pairs,
		"{date}", date.Format(compactDateLayout),
		"{date_iso}", date.Format(isoDateLayout),
	)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	replacer := strings.NewReplacer(pairs...)

	resolved := make([]string, 0, len(args))
	for _, arg := range args {
		var value string
		if strings.EqualFold(arg, TodayToken) {
			value = date.Format(compactDateLayout)
		} else {
			value = replacer.Replace(arg)
		}
		if value == "" && arg != "" && len(resolved) > 0 && isFlag(resolved[len(resolved)-1]) {
			resolved = resolved[:len(resolved)-1]
			continue
		}
		resolved = append(resolved, value)
	}
	return resolved
}

func isFlag(arg string) bool {
	return strings.HasPrefix(arg, "-") && len(arg) > 1 && !strings.Contains(arg, "=")
}
