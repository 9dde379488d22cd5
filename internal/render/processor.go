package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"

	"github.com/disintegration/imaging"

	"thumbnail-proxy-go/internal/model"
)

// Capabilities lists the optional operations a Processor performs.
type Capabilities struct {
	Orient        bool
	StripMetadata bool
}

// Processor reads and transforms image files.
type Processor interface {
	Capabilities() Capabilities
	Inspect(path string) (ImageInfo, error)
	Transform(src string, t Transform, dst string) error
}

// anchors maps gravities to imaging crop anchors.
var anchors = map[model.Gravity]imaging.Anchor{
	model.GravityNorthWest: imaging.TopLeft,
	model.GravityNorth:     imaging.Top,
	model.GravityNorthEast: imaging.TopRight,
	model.GravityWest:      imaging.Left,
	model.GravityCenter:    imaging.Center,
	model.GravityEast:      imaging.Right,
	model.GravitySouthWest: imaging.BottomLeft,
	model.GravitySouth:     imaging.Bottom,
	model.GravitySouthEast: imaging.BottomRight,
}

// ImagingProcessor is a Processor backed by github.com/disintegration/imaging.
//
// Encoding always drops metadata. When a transform keeps metadata and the
// output is JPEG, the source's EXIF, ICC and IPTC segments are copied over.
type ImagingProcessor struct {
	jpegQuality int
}

// NewImagingProcessor returns an ImagingProcessor encoding JPEG at the given quality.
func NewImagingProcessor(jpegQuality int) *ImagingProcessor {
	return &ImagingProcessor{jpegQuality: jpegQuality}
}

// Capabilities implements Processor.
func (p *ImagingProcessor) Capabilities() Capabilities {
	return Capabilities{Orient: true, StripMetadata: true}
}

// Inspect reads the stored dimensions and EXIF orientation without decoding pixels.
func (p *ImagingProcessor) Inspect(path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image config: %w", err)
	}

	info := ImageInfo{Width: cfg.Width, Height: cfg.Height, Orientation: 1}
	if format == "jpeg" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return ImageInfo{}, fmt.Errorf("rewind image: %w", err)
		}
		info.Orientation = readOrientation(f)
	}
	return info, nil
}

// Transform implements Processor. The output format follows dst's extension.
func (p *ImagingProcessor) Transform(src string, t Transform, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(t.Orient))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return fmt.Errorf("output format: %w", err)
	}

	var out *image.NRGBA
	bounds := img.Bounds()
	switch t.Mode {
	case ModeCrop:
		anchor, ok := anchors[t.Gravity]
		if !ok {
			anchor = imaging.Center
		}
		out = imaging.Fill(img, min(t.Width, bounds.Dx()), min(t.Height, bounds.Dy()), anchor, imaging.Lanczos)
	default:
		out = imaging.Fit(img, t.Width, t.Height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(p.jpegQuality)); err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	data := buf.Bytes()

	if !t.StripMetadata && format == imaging.JPEG {
		source, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read source metadata: %w", err)
		}
		if data, err = spliceJPEGMetadata(source, data, t.Orient); err != nil {
			return fmt.Errorf("copy metadata: %w", err)
		}
	}

	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return nil
}
