package enums

import "fmt"

// AddressType partitions a user's saved addresses; checkout resolves one
// address per requested type.
type AddressType string

const (
	AddressTypeHome     AddressType = "home"
	AddressTypeWork     AddressType = "work"
	AddressTypeBilling  AddressType = "billing"
	AddressTypeShipping AddressType = "shipping"
	AddressTypeOther    AddressType = "other"
)

var validAddressTypes = []AddressType{
	AddressTypeHome,
	AddressTypeWork,
	AddressTypeBilling,
	AddressTypeShipping,
	AddressTypeOther,
}

// String implements fmt.Stringer.
func (a AddressType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AddressType.
func (a AddressType) IsValid() bool {
	for _, candidate := range validAddressTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAddressType converts raw input into an AddressType.
func ParseAddressType(value string) (AddressType, error) {
	for _, candidate := range validAddressTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid address type %q", value)
}
