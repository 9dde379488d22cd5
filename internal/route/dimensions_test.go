package route

import (
	"errors"
	"testing"

	"thumbnail-proxy-go/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		token    string
		override *bool
		want     model.RenderSpec
	}{
		{"50x", nil, model.RenderSpec{Width: 50, Crop: true}},
		{"x50", nil, model.RenderSpec{Height: 50, Crop: true}},
		{"50x50", nil, model.RenderSpec{Width: 50, Height: 50, Crop: true}},
		{"50xx50", nil, model.RenderSpec{Width: 50, Height: 50, Crop: false}},
		{"120x80", nil, model.RenderSpec{Width: 120, Height: 80, Crop: true}},
		{"50x50", boolPtr(false), model.RenderSpec{Width: 50, Height: 50, Crop: false}},
		{"50xx50", boolPtr(true), model.RenderSpec{Width: 50, Height: 50, Crop: true}},
		{"10x", boolPtr(false), model.RenderSpec{Width: 10, Crop: false}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseDimensions(tt.token, tt.override)
			if err != nil {
				t.Fatalf("ParseDimensions(%q) error = %v", tt.token, err)
			}
			if got != tt.want {
				t.Errorf("ParseDimensions(%q) = %+v, want %+v", tt.token, got, tt.want)
			}
		})
	}
}

func TestParseDimensions_Malformed(t *testing.T) {
	tokens := []string{
		"0x50",
		"50x0",
		"x050",
		"050xx50",
		"x",
		"xx",
		"",
		"abc",
		"50",
		"50xxx50",
		"99999999999999999999999x",
	}

	for _, token := range tokens {
		t.Run(token, func(t *testing.T) {
			_, err := ParseDimensions(token, nil)
			if err == nil {
				t.Fatalf("ParseDimensions(%q) expected error, got nil", token)
			}
			if !errors.Is(err, ErrMalformedDimensions) {
				t.Errorf("error = %v, want ErrMalformedDimensions", err)
			}
		})
	}
}

func TestParseRenderSpec(t *testing.T) {
	tests := []struct {
		name string
		m    model.MatchResult
		want model.RenderSpec
	}{
		{
			name: "gravity defaults to center",
			m:    model.MatchResult{Dimensions: "50x50"},
			want: model.RenderSpec{Width: 50, Height: 50, Crop: true, Gravity: model.GravityCenter},
		},
		{
			name: "northwest",
			m:    model.MatchResult{Dimensions: "50x20", Gravity: "nw"},
			want: model.RenderSpec{Width: 50, Height: 20, Crop: true, Gravity: model.GravityNorthWest},
		},
		{
			name: "southeast raw",
			m:    model.MatchResult{Dimensions: "x20", Gravity: "se", Options: "raw"},
			want: model.RenderSpec{Height: 20, Crop: true, Gravity: model.GravitySouthEast, Raw: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRenderSpec(tt.m, nil)
			if err != nil {
				t.Fatalf("ParseRenderSpec() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseRenderSpec() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRenderSpec_AllGravities(t *testing.T) {
	for abbr, want := range gravities {
		t.Run(abbr, func(t *testing.T) {
			got, err := ParseRenderSpec(model.MatchResult{Dimensions: "1x1", Gravity: abbr}, nil)
			if err != nil {
				t.Fatalf("ParseRenderSpec() error = %v", err)
			}
			if got.Gravity != want {
				t.Errorf("Gravity = %q, want %q", got.Gravity, want)
			}
		})
	}
}

func TestParseRenderSpec_Errors(t *testing.T) {
	if _, err := ParseRenderSpec(model.MatchResult{Dimensions: "0x0"}, nil); !errors.Is(err, ErrMalformedDimensions) {
		t.Errorf("error = %v, want ErrMalformedDimensions", err)
	}
	if _, err := ParseRenderSpec(model.MatchResult{Dimensions: "1x1", Gravity: "up"}, nil); !errors.Is(err, ErrMalformedDimensions) {
		t.Errorf("error = %v, want ErrMalformedDimensions", err)
	}
}
