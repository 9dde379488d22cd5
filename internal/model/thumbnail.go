package model

// Gravity is the anchor used when cropping to an exact box.
type Gravity string

// Compass gravities.
const (
	GravityNorthWest Gravity = "northwest"
	GravityNorth     Gravity = "north"
	GravityNorthEast Gravity = "northeast"
	GravityWest      Gravity = "west"
	GravityCenter    Gravity = "center"
	GravityEast      Gravity = "east"
	GravitySouthWest Gravity = "southwest"
	GravitySouth     Gravity = "south"
	GravitySouthEast Gravity = "southeast"
)

// MatchResult holds the raw fields captured from a thumbnail URL.
//
// For "/media/photos/cat_50x50-nw-raw-0a1b.jpg" matched against base "/media/":
// Base "/media/", Name "photos/cat", Dimensions "50x50", Gravity "nw",
// Options "raw", Signature "0a1b", Ext ".jpg".
type MatchResult struct {
	Base       string
	Name       string
	Dimensions string
	Gravity    string
	Options    string
	Signature  string
	Ext        string
}

// SourcePath is the origin path of the image the thumbnail is derived from.
func (m MatchResult) SourcePath() string {
	return m.Base + m.Name + m.Ext
}

// RenderSpec describes the requested thumbnail.
// A zero Width or Height leaves that axis unconstrained; at least one is set.
type RenderSpec struct {
	Width   int
	Height  int
	Crop    bool
	Gravity Gravity
	Raw     bool // skip orientation and metadata normalization
}
