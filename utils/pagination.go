package utils

import (
	"strconv"
	"strings"
)

// ParsePage reads limit/offset query values, ignoring anything unparsable.
// Bounds are enforced by the services.
func ParsePage(limitStr, offsetStr string) (limit, offset int) {
	if v, err := strconv.Atoi(strings.TrimSpace(limitStr)); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(offsetStr)); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
