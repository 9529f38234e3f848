// Package mgutil holds small helpers with no dependency on gomode.sh/mg
package mgutil

import (
	"strconv"
	"strings"
)

// QuoteCmdArg quotes the command arg s for display.
// NOTE: the result is for display only, and should not be used for shell security.
// e.g.
// `a b c` -> `"a b c"`
// `abc` -> `abc`
// `-abc=1 2 3` -> `-abc="1 2 3"`
func QuoteCmdArg(s string) string {
	eqPos := strings.Index(s, "=")
	switch {
	case s == "":
		return `""`
	case !strings.ContainsAny(s, " \t"):
		return s
	case strings.HasPrefix(s, "-") && eqPos > 0:
		return s[:eqPos+1] + strconv.Quote(s[eqPos+1:])
	default:
		return strconv.Quote(s)
	}
}

// QuoteCmd joins `name [args]` with name and each arg quoted with QuoteCmdArg
// NOTE: the result is for display only, and should not be used for shell security.
func QuoteCmd(name string, args ...string) string {
	a := make([]string, 0, len(args)+1)
	a = append(a, QuoteCmdArg(name))
	for _, s := range args {
		a = append(a, QuoteCmdArg(s))
	}
	return strings.Join(a, " ")
}
