// Package registry is the static catalogue of supported barcode symbologies,
// output image formats, and per-symbology input length limits. It is
// read-only; everything that builds a generation request starts here.
package registry

import "strings"

// Symbology identifies a barcode encoding standard.
type Symbology string

const (
	SymbologyEAN8       Symbology = "ean8"
	SymbologyEAN13      Symbology = "ean13"
	SymbologyUPCA       Symbology = "upca"
	SymbologyUPCE       Symbology = "upce"
	SymbologyISBN10     Symbology = "isbn10"
	SymbologyISBN13     Symbology = "isbn13"
	SymbologyITF14      Symbology = "itf14"
	SymbologyCode39     Symbology = "code39"
	SymbologyCode93     Symbology = "code93"
	SymbologyCode128    Symbology = "code128"
	SymbologyCodabar    Symbology = "codabar"
	SymbologyMSI        Symbology = "msi"
	SymbologyQR         Symbology = "qr"
	SymbologyDataMatrix Symbology = "datamatrix"
	SymbologyPDF417     Symbology = "pdf417"
	SymbologyAztec      Symbology = "aztec"
)

// ImageFormat identifies a raster output format.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatGIF  ImageFormat = "gif"
)

// symbologies is the closed set, in presentation order.
var symbologies = []Symbology{
	SymbologyEAN8,
	SymbologyEAN13,
	SymbologyUPCA,
	SymbologyUPCE,
	SymbologyISBN10,
	SymbologyISBN13,
	SymbologyITF14,
	SymbologyCode39,
	SymbologyCode93,
	SymbologyCode128,
	SymbologyCodabar,
	SymbologyMSI,
	SymbologyQR,
	SymbologyDataMatrix,
	SymbologyPDF417,
	SymbologyAztec,
}

var formats = []ImageFormat{FormatPNG, FormatJPEG, FormatGIF}

// characterLimits maps a symbology to its maximum payload length, counted in
// characters before any check digit the rendering service computes itself.
// A symbology absent from this map imposes no length constraint; absence
// never means zero.
var characterLimits = map[Symbology]int{
	SymbologyEAN8:   7,
	SymbologyEAN13:  12,
	SymbologyUPCA:   11,
	SymbologyUPCE:   7,
	SymbologyISBN10: 9,
	SymbologyISBN13: 12,
	SymbologyITF14:  13,
	SymbologyCode39: 43,
	SymbologyPDF417: 1850,
}

// Symbologies returns the closed set of supported symbologies.
func Symbologies() []Symbology {
	out := make([]Symbology, len(symbologies))
	copy(out, symbologies)
	return out
}

// Formats returns the closed set of supported output formats.
func Formats() []ImageFormat {
	out := make([]ImageFormat, len(formats))
	copy(out, formats)
	return out
}

// CharacterLimit reports the inclusive maximum payload length for s. The
// second result is false when s carries no documented limit.
func CharacterLimit(s Symbology) (int, bool) {
	limit, ok := characterLimits[s]
	return limit, ok
}

// ParseSymbology resolves a case-insensitive symbology name against the
// closed set. Unknown names fail; there is no pass-through.
func ParseSymbology(name string) (Symbology, bool) {
	candidate := Symbology(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range symbologies {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// ParseFormat resolves a case-insensitive format name against the closed set.
// "jpg" is accepted as an alias for jpeg.
func ParseFormat(name string) (ImageFormat, bool) {
	candidate := strings.ToLower(strings.TrimSpace(name))
	if candidate == "jpg" {
		candidate = string(FormatJPEG)
	}
	for _, f := range formats {
		if f == ImageFormat(candidate) {
			return f, true
		}
	}
	return "", false
}

// MIME returns the content type served for the format.
func (f ImageFormat) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	default:
		return "image/png"
	}
}

// Ext returns the file extension used for download filenames.
func (f ImageFormat) Ext() string {
	return string(f)
}
