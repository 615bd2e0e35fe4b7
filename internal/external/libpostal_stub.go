//go:build !libpostal

package external

func Available() bool { return false }

// ParseAddressLine is a no-op without libpostal
func ParseAddressLine(raw string) Components {
	return Components{}
}
