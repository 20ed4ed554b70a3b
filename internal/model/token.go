package model

import (
	"math"
	"strings"
)

// Rect is an axis-aligned box in image pixel coordinates.
type Rect struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.Left + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Top + r.Height }

// Area returns the box area, or 0 for degenerate boxes.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Empty reports whether the box has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Center returns the integer center point.
func (r Rect) Center() (int, int) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// Intersects reports whether the two boxes share any area.
func (r Rect) Intersects(o Rect) bool {
	return r.Left < o.Right() && o.Left < r.Right() &&
		r.Top < o.Bottom() && o.Top < r.Bottom()
}

// Intersection returns the overlapping box, or the zero Rect when disjoint.
func (r Rect) Intersection(o Rect) Rect {
	if !r.Intersects(o) {
		return Rect{}
	}
	left, top := max(r.Left, o.Left), max(r.Top, o.Top)
	right, bottom := min(r.Right(), o.Right()), min(r.Bottom(), o.Bottom())
	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// Union returns the smallest box containing both boxes.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	left, top := min(r.Left, o.Left), min(r.Top, o.Top)
	right, bottom := max(r.Right(), o.Right()), max(r.Bottom(), o.Bottom())
	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// Clamp restricts the box to a w x h image.
func (r Rect) Clamp(w, h int) Rect {
	left := min(max(r.Left, 0), max(w, 0))
	top := min(max(r.Top, 0), max(h, 0))
	right := min(r.Right(), w)
	bottom := min(r.Bottom(), h)
	return Rect{Left: left, Top: top, Width: max(right-left, 0), Height: max(bottom-top, 0)}
}

// RelRect is a box expressed as fractions of the image width and height.
type RelRect struct {
	Left   float64 `json:"left_rel" yaml:"left_rel"`
	Top    float64 `json:"top_rel" yaml:"top_rel"`
	Width  float64 `json:"width_rel" yaml:"width_rel"`
	Height float64 `json:"height_rel" yaml:"height_rel"`
}

// Abs converts the relative box to pixels for a w x h image, clamped to bounds.
func (r RelRect) Abs(w, h int) Rect {
	return Rect{
		Left:   int(math.Round(r.Left * float64(w))),
		Top:    int(math.Round(r.Top * float64(h))),
		Width:  int(math.Round(r.Width * float64(w))),
		Height: int(math.Round(r.Height * float64(h))),
	}.Clamp(w, h)
}

// Valid reports whether every component is within [0,1] and the box has area.
func (r RelRect) Valid() bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return in(r.Left) && in(r.Top) && in(r.Width) && in(r.Height) &&
		r.Width > 0 && r.Height > 0
}

// Token is a single recognized word with its bounding box.
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Left       int     `json:"left"`
	Top        int     `json:"top"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Rect returns the token bounding box.
func (t Token) Rect() Rect {
	return Rect{Left: t.Left, Top: t.Top, Width: t.Width, Height: t.Height}
}

// Center returns the token center point.
func (t Token) Center() (int, int) { return t.Rect().Center() }

// Document is the OCR view of one receipt image. It is built once per
// invocation and never modified.
type Document struct {
	ID       string  `json:"id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Tokens   []Token `json:"tokens"`
	FullText string  `json:"full_text"`
}

// FilterTokens drops tokens with empty text or confidence at or below floor.
// Text is trimmed in the returned copies.
func FilterTokens(tokens []Token, floor float64) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text == "" || t.Confidence <= floor {
			continue
		}
		out = append(out, t)
	}
	return out
}
