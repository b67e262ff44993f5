package segment

import (
	"strconv"
	"strings"
)

// MediaName is the base file name the media service uses for a segment.
// Main segments keep the generator's "<title>_segment_<n>"; branch segments,
// which it never named, get "<title>_<branch>_segment_<n>" here.
// Spaces in the title become underscores.
func MediaName(title, listKey string, n int) string {
	base := strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	if listKey != "" && listKey != MainKey {
		base += "_" + listKey
	}
	return base + "_segment_" + strconv.Itoa(n)
}
