package enums

import "fmt"

// PackageSize names the fixed shipping box sizes registered with the carrier.
type PackageSize string

const (
	PackageSizeS  PackageSize = "S"
	PackageSizeM  PackageSize = "M"
	PackageSizeL  PackageSize = "L"
	PackageSizeXL PackageSize = "XL"
)

var validPackageSizes = []PackageSize{
	PackageSizeS,
	PackageSizeM,
	PackageSizeL,
	PackageSizeXL,
}

// String implements fmt.Stringer.
func (p PackageSize) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PackageSize.
func (p PackageSize) IsValid() bool {
	for _, candidate := range validPackageSizes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePackageSize converts raw input into a PackageSize.
func ParsePackageSize(value string) (PackageSize, error) {
	for _, candidate := range validPackageSizes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid package size %q", value)
}
