// Package filename normalizes uploaded file names and resolves public-name collisions.
package filename

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidName is returned for names that are empty after cleaning.
var ErrInvalidName = errors.New("invalid file name")

// Clean strips directory components and surrounding whitespace from an
// uploader-supplied name. Both slash styles are treated as separators.
func Clean(raw string) (string, error) {
	name := raw
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	switch name {
	case "", ".", "..":
		return "", ErrInvalidName
	}
	return name, nil
}

// Split separates a name into stem and extension. A leading dot does not
// start an extension, so ".env" has no extension.
func Split(name string) (stem, ext string) {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

// Disambiguate returns candidate when it is not in existing, otherwise the
// first free "stem-N.ext" for N = 1, 2, ...
func Disambiguate(existing map[string]struct{}, candidate string) string {
	if _, taken := existing[candidate]; !taken {
		return candidate
	}
	stem, ext := Split(candidate)
	for n := 1; ; n++ {
		name := stem + "-" + strconv.Itoa(n) + ext
		if _, taken := existing[name]; !taken {
			return name
		}
	}
}
