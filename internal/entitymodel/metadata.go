package entitymodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"spacenet/internal/mapping"
)

// Version returns a fingerprint of every shape and field declaration. It
// changes whenever a field, bound or shape name changes.
func Version(m *mapping.Mapping) string {
	h := sha256.New()
	for _, shape := range m.Shapes() {
		fmt.Fprintf(h, "%s|%s|%s|%s\n", shape.Name(), shape.Role(), shape.Kind(), shape.Variant())
		for _, f := range shape.Fields() {
			fmt.Fprintf(h, "  %s %s req=%t null=%t enum=%s", f.Name, f.Type, f.Required, f.Nullable, strings.Join(f.Enum, ","))
			if f.Min != nil {
				fmt.Fprintf(h, " min=%g", *f.Min)
			}
			if f.Max != nil {
				fmt.Fprintf(h, " max=%g", *f.Max)
			}
			h.Write([]byte{'\n'})
		}
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))[:16]
}
