package enums

import "fmt"

// Carrier identifies which delivery network fulfills an order group.
type Carrier string

const (
	CarrierCdek Carrier = "cdek"
	CarrierPost Carrier = "post"
)

var validCarriers = []Carrier{CarrierCdek, CarrierPost}

// String implements fmt.Stringer.
func (c Carrier) String() string {
	return string(c)
}

// IsValid reports whether the value is a known Carrier.
func (c Carrier) IsValid() bool {
	for _, candidate := range validCarriers {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCarrier converts raw input into a Carrier.
func ParseCarrier(value string) (Carrier, error) {
	for _, candidate := range validCarriers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid carrier %q", value)
}
