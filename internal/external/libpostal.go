//go:build libpostal

package external

import (
	"strings"

	"github.com/openvenues/gopostal/expand"
	"github.com/openvenues/gopostal/parser"
)

// Available reports whether the binary was built with libpostal
func Available() bool { return true }

// ParseAddressLine runs libpostal over a Polish address line
func ParseAddressLine(raw string) Components {
	opts := expand.DefaultOptions()
	opts.Languages = []string{"pl"}
	exps := expand.ExpandAddress(raw, opts)
	best := raw
	if len(exps) > 0 {
		best = exps[0]
	}
	comps := parser.ParseAddress(best)
	covered, total := 0, len(strings.Fields(best))
	c := Components{}
	for _, pc := range comps {
		value := strings.ToUpper(pc.Value)
		switch pc.Label {
		case "house_number":
			c.HouseNumber = value
		case "road":
			c.Road = value
		case "unit":
			c.Unit = value
		case "postcode":
			c.Postcode = value
		case "city":
			c.City = value
		}
		covered += len(strings.Fields(pc.Value))
	}
	if total > 0 {
		c.Coverage = float64(covered) / float64(total)
	}
	return c
}
