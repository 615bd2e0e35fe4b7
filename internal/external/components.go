package external

// Components is the subset of libpostal labels the address parser uses
type Components struct {
	Road, HouseNumber, Unit, Postcode, City string
	Coverage                                float64
}

// Found reports whether libpostal recognized a house number
func (c Components) Found() bool {
	return c.HouseNumber != ""
}
