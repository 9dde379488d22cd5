package route

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"thumbnail-proxy-go/internal/model"
)

// ErrMalformedDimensions is returned for dimension tokens that constrain no
// axis or carry a leading zero.
var ErrMalformedDimensions = errors.New("malformed thumbnail dimensions")

var dimensionParts = regexp.MustCompile(`^(\d*)x(x?)(\d*)$`)

// ParseDimensions decodes a dimension token such as "50x", "x50", "50x50" or "50xx50".
//
// A single separator requests a crop to the exact box, a doubled one a bounded
// fit. A non-nil cropOverride replaces the token's crop flag.
func ParseDimensions(token string, cropOverride *bool) (model.RenderSpec, error) {
	parts := dimensionParts.FindStringSubmatch(token)
	if parts == nil {
		return model.RenderSpec{}, fmt.Errorf("%w: %q", ErrMalformedDimensions, token)
	}

	crop := parts[2] == ""
	if cropOverride != nil {
		crop = *cropOverride
	}

	width, err := parseAxis(parts[1])
	if err != nil {
		return model.RenderSpec{}, fmt.Errorf("%w: %q: width %v", ErrMalformedDimensions, token, err)
	}
	height, err := parseAxis(parts[3])
	if err != nil {
		return model.RenderSpec{}, fmt.Errorf("%w: %q: height %v", ErrMalformedDimensions, token, err)
	}
	if width == 0 && height == 0 {
		return model.RenderSpec{}, fmt.Errorf("%w: %q constrains no axis", ErrMalformedDimensions, token)
	}

	return model.RenderSpec{Width: width, Height: height, Crop: crop}, nil
}

// parseAxis returns 0 for an empty axis.
func parseAxis(digits string) (int, error) {
	if digits == "" {
		return 0, nil
	}
	if digits[0] == '0' {
		return 0, fmt.Errorf("%q has a leading zero", digits)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%q out of range", digits)
	}
	return n, nil
}

// ParseRenderSpec builds the render spec for a matched request. Gravity
// defaults to center.
func ParseRenderSpec(m model.MatchResult, cropOverride *bool) (model.RenderSpec, error) {
	spec, err := ParseDimensions(m.Dimensions, cropOverride)
	if err != nil {
		return model.RenderSpec{}, err
	}

	spec.Gravity = model.GravityCenter
	if m.Gravity != "" {
		g, ok := gravities[m.Gravity]
		if !ok {
			return model.RenderSpec{}, fmt.Errorf("%w: unknown gravity %q", ErrMalformedDimensions, m.Gravity)
		}
		spec.Gravity = g
	}
	spec.Raw = m.Options == "raw"
	return spec, nil
}
