package sipfit

import "errors"

var (
	// ErrDomain marks inputs for which an impedance or codec formula is
	// undefined (zero inductance, zero CPE coefficient, negative frequency,
	// non-positive magnitude, zero impedance before a parallel combination).
	ErrDomain = errors.New("domain error")

	// ErrConfig marks malformed configuration: unknown or missing parameter
	// names, bounds that do not cover the free parameters, bad enum values.
	ErrConfig = errors.New("configuration error")
)
