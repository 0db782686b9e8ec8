package simulation

import (
	"fmt"
	"strings"
)

// Mode names an arena variant.
type Mode string

const (
	ModeSoccar   Mode = "soccar"
	ModeHoops    Mode = "hoops"
	ModeDropshot Mode = "dropshot"
)

// Modes lists every supported arena variant.
var Modes = []Mode{ModeSoccar, ModeHoops, ModeDropshot}

// ParseMode resolves a mode name. Matching ignores case and surrounding space.
func ParseMode(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown arena mode %q", ErrConfiguration, name)
}
