package imaging

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalExt is the extension of every converted asset.
const CanonicalExt = "webp"

// CanonicalName derives the on-disk name of a converted asset from the
// client's original file name: "<base>_<millis>-<rand>.webp".
func CanonicalName(original string, now time.Time) string {
	return fmt.Sprintf("%s_%d-%s.%s",
		NormalizeBase(original),
		now.UnixMilli(),
		uuid.NewString()[:8],
		CanonicalExt,
	)
}

// NormalizeBase strips directories and everything from the first dot,
// joins whitespace runs with a single underscore and drops characters
// that are unsafe in a URL path.
func NormalizeBase(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	base = strings.Join(strings.Fields(base), "_")

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
