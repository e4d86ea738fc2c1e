package codec

import (
	"github.com/pkg/errors"
)

// DateRange is a decoded date property. End is empty when the date is not a range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Annotations is the visual styling of a rich text run.
type Annotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color"`
}

// DefaultAnnotations is the unstyled run.
func DefaultAnnotations() Annotations {
	return Annotations{Color: "default"}
}

var colors = map[string]bool{
	"default": true,
	"blue": true, "blue_background": true,
	"brown": true, "brown_background": true,
	"gray": true, "gray_background": true,
	"green": true, "green_background": true,
	"orange": true, "orange_background": true,
	"pink": true, "pink_background": true,
	"purple": true, "purple_background": true,
	"red": true, "red_background": true,
	"yellow": true, "yellow_background": true,
}

// Validate checks the color against the backend palette. An empty color means default.
func (a *Annotations) Validate() error {
	if a.Color == "" {
		a.Color = "default"
	}
	if !colors[a.Color] {
		return errors.Wrapf(ErrInvalidValue, "annotation color %q", a.Color)
	}
	return nil
}

// Properties is a set of encoded property fragments keyed by property name,
// ready to be sent as the "properties" object of a page request.
type Properties map[string]any

// Merge copies every fragment of other into p.
func (p Properties) Merge(other Properties) Properties {
	for k, v := range other {
		p[k] = v
	}
	return p
}
