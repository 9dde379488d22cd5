package route

import (
	"testing"

	"thumbnail-proxy-go/internal/model"
)

func TestMatcher_Match(t *testing.T) {
	m, err := NewMatcher([]string{"/media/", "/"}, "", 0)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	tests := []struct {
		name string
		path string
		want model.MatchResult
	}{
		{
			name: "width only",
			path: "/foobar_50x.jpg",
			want: model.MatchResult{Base: "/", Name: "foobar", Dimensions: "50x", Ext: ".jpg"},
		},
		{
			name: "height only",
			path: "/foobar_x50.png",
			want: model.MatchResult{Base: "/", Name: "foobar", Dimensions: "x50", Ext: ".png"},
		},
		{
			name: "crop box with gravity",
			path: "/media/photos/cat_50x100-sw.gif",
			want: model.MatchResult{Base: "/media/", Name: "photos/cat", Dimensions: "50x100", Gravity: "sw", Ext: ".gif"},
		},
		{
			name: "fit box with gravity and raw",
			path: "/media/cat_50xx100-c-raw.jpeg",
			want: model.MatchResult{Base: "/media/", Name: "cat", Dimensions: "50xx100", Gravity: "c", Options: "raw", Ext: ".jpeg"},
		},
		{
			name: "raw without gravity",
			path: "/cat_10x-raw.jpg",
			want: model.MatchResult{Base: "/", Name: "cat", Dimensions: "10x", Options: "raw", Ext: ".jpg"},
		},
		{
			name: "extension is case-insensitive",
			path: "/cat_10x10.JPG",
			want: model.MatchResult{Base: "/", Name: "cat", Dimensions: "10x10", Ext: ".JPG"},
		},
		{
			name: "underscores in name",
			path: "/my_cat_10x20_30x40.png",
			want: model.MatchResult{Base: "/", Name: "my_cat_10x20", Dimensions: "30x40", Ext: ".png"},
		},
		{
			name: "leading zero still matches structurally",
			path: "/cat_0x50.jpg",
			want: model.MatchResult{Base: "/", Name: "cat", Dimensions: "0x50", Ext: ".jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.path)
			if !ok {
				t.Fatalf("Match(%q) did not match", tt.path)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	m, err := NewMatcher([]string{"/media/"}, "", 0)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	paths := []string{
		"/media/cat.jpg",
		"/media/cat_50x.bmp",
		"/media/cat_x.jpg",
		"/media/cat_50X50.jpg",
		"/media/cat_50xxx50.jpg",
		"/media/cat_50x-zz.jpg",
		"/media/cat_50x-raw-nw.jpg",
		"/media/_50x.jpg",
		"/other/cat_50x.jpg",
		"/media/cat_50x.jpg/extra",
		"/media/cat_50x-abcd.jpg",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			if got, ok := m.Match(p); ok {
				t.Errorf("Match(%q) = %+v, want no match", p, got)
			}
		})
	}
}

func TestMatcher_FirstBaseWins(t *testing.T) {
	tests := []struct {
		name     string
		bases    []string
		wantBase string
		wantName string
	}{
		{"specific first", []string{"/media/", "/"}, "/media/", "cat"},
		{"root first", []string{"/", "/media/"}, "/", "media/cat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(tt.bases, "", 0)
			if err != nil {
				t.Fatalf("NewMatcher() error = %v", err)
			}
			got, ok := m.Match("/media/cat_10x.jpg")
			if !ok {
				t.Fatal("expected match")
			}
			if got.Base != tt.wantBase || got.Name != tt.wantName {
				t.Errorf("Base, Name = %q, %q; want %q, %q", got.Base, got.Name, tt.wantBase, tt.wantName)
			}
			if got.SourcePath() != "/media/cat.jpg" {
				t.Errorf("SourcePath() = %q, want %q", got.SourcePath(), "/media/cat.jpg")
			}
		})
	}
}

func TestMatcher_Prefix(t *testing.T) {
	m, err := NewMatcher([]string{"/media/"}, "/thumbs", 0)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	got, ok := m.Match("/thumbs/media/cat_10x.jpg")
	if !ok {
		t.Fatal("expected match with prefix")
	}
	if got.SourcePath() != "/media/cat.jpg" {
		t.Errorf("SourcePath() = %q, want %q (prefix stripped)", got.SourcePath(), "/media/cat.jpg")
	}

	if _, ok := m.Match("/media/cat_10x.jpg"); ok {
		t.Error("expected no match without prefix")
	}
}

func TestMatcher_QuotesBasePath(t *testing.T) {
	m, err := NewMatcher([]string{"/a.b/"}, "", 0)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	if _, ok := m.Match("/aXb/cat_10x.jpg"); ok {
		t.Error("'.' in base path must match literally")
	}
	if _, ok := m.Match("/a.b/cat_10x.jpg"); !ok {
		t.Error("expected match for literal base path")
	}
}

func TestMatcher_Signature(t *testing.T) {
	m, err := NewMatcher([]string{"/"}, "", 4)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	tests := []struct {
		path    string
		match   bool
		wantSig string
	}{
		{"/cat_10x-0a1b.jpg", true, "0a1b"},
		{"/cat_10x-nw-raw-0a1b.jpg", true, "0a1b"},
		{"/cat_10x.jpg", true, ""},
		{"/cat_10x-0A1B.jpg", false, ""},
		{"/cat_10x-0a1.jpg", false, ""},
		{"/cat_10x-0a1b2.jpg", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := m.Match(tt.path)
			if ok != tt.match {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.match)
			}
			if got.Signature != tt.wantSig {
				t.Errorf("Signature = %q, want %q", got.Signature, tt.wantSig)
			}
		})
	}
}

func TestNewMatcher_Errors(t *testing.T) {
	if _, err := NewMatcher(nil, "", 0); err == nil {
		t.Error("NewMatcher(nil) expected error")
	}
	if _, err := NewMatcher([]string{"/"}, "", -1); err == nil {
		t.Error("NewMatcher(keyLength=-1) expected error")
	}
}
