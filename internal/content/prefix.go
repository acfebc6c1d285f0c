package content

import (
	"regexp"
	"strconv"
)

var orderPrefixRe = regexp.MustCompile(`^(\d+)-`)

// StripPrefix removes a leading ordering prefix ("01-") from a directory name.
// Names without a prefix are returned unchanged.
func StripPrefix(name string) string {
	return orderPrefixRe.ReplaceAllString(name, "")
}

// orderNum returns the numeric ordering prefix of name.
func orderNum(name string) (int, bool) {
	m := orderPrefixRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
