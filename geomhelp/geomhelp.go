package geomhelp

import (
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
)

// WktMustEncode returns the WKT of g for use in log lines, truncated to maxLen (0 means no limit).
// Geometries that cannot be encoded are described by their type instead.
func WktMustEncode(g geom.Geometry, maxLen uint) string {
	if g == nil {
		return "<nil>"
	}
	s, err := wkt.EncodeString(g)
	if err != nil {
		s = fmt.Sprintf("<%T>", g)
	}
	if maxLen == 0 {
		return s
	}
	return truncate.StringWithTail(s, maxLen, "...")
}
