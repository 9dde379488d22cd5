// Package render plans thumbnail transforms and executes them on image files.
package render

import "thumbnail-proxy-go/internal/model"

// Mode selects how the source is fitted to the target box.
type Mode int

const (
	// ModeFit shrinks the image to fit within the box, preserving aspect ratio.
	ModeFit Mode = iota
	// ModeCrop produces exactly the box, cropping overflow away from the gravity anchor.
	ModeCrop
)

func (m Mode) String() string {
	if m == ModeCrop {
		return "crop"
	}
	return "fit"
}

// Transform is a concrete render plan for one image.
type Transform struct {
	Mode          Mode
	Width         int
	Height        int
	Gravity       model.Gravity
	Orient        bool // apply the EXIF orientation to the pixels
	StripMetadata bool
}

// ImageInfo describes a source image as stored on disk.
type ImageInfo struct {
	Width       int
	Height      int
	Orientation int // EXIF orientation, 1 when absent
}

// Oriented returns the dimensions after applying the EXIF orientation.
func (i ImageInfo) Oriented() (width, height int) {
	if i.Orientation >= 5 && i.Orientation <= 8 {
		return i.Height, i.Width
	}
	return i.Width, i.Height
}

// Planner turns render specs into transforms. It holds no per-request state.
type Planner struct {
	caps             Capabilities
	preserveMetadata bool
}

// NewPlanner returns a Planner for a processor with the given capabilities.
func NewPlanner(caps Capabilities, preserveMetadata bool) *Planner {
	return &Planner{caps: caps, preserveMetadata: preserveMetadata}
}

// Plan decides the transform for spec applied to src. Requested sizes are
// clamped to the source on each axis; images are never enlarged.
func (p *Planner) Plan(spec model.RenderSpec, src ImageInfo) Transform {
	t := Transform{
		Gravity:       spec.Gravity,
		Orient:        !spec.Raw && p.caps.Orient,
		StripMetadata: !spec.Raw && !p.preserveMetadata && p.caps.StripMetadata,
	}

	srcW, srcH := src.Width, src.Height
	if t.Orient {
		srcW, srcH = src.Oriented()
	}

	t.Width = clamp(spec.Width, srcW)
	t.Height = clamp(spec.Height, srcH)
	if spec.Crop && spec.Width > 0 && spec.Height > 0 {
		t.Mode = ModeCrop
	}
	return t
}

// clamp bounds a requested size by the source size. Zero means unconstrained.
func clamp(requested, source int) int {
	if requested == 0 || requested > source {
		return source
	}
	return requested
}
