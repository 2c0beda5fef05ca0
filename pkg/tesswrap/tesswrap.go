/*
Package tesswrap is a rather limited wrapper for Tesseract OCR v5.
It models a single TessBaseAPI handle: initialize, configure, bind an image
and read the result back as plain text or hOCR.

It defaults to using the CLI.
Alternative implementations can be used by supplying build tags:
`gosseract` (cgo bindings) or `tesseract_pure` (libtesseract via purego).

An Engine is not safe for concurrent use.
*/
package tesswrap

import (
	"os"
	"path/filepath"
	"strings"
)

// OEM selects the recognition algorithm variant.
type OEM int

const (
	OEMTesseractOnly         OEM = 0
	OEMLSTMOnly              OEM = 1
	OEMTesseractLSTMCombined OEM = 2
	OEMDefault               OEM = 3
)

// PSM selects how the page is segmented before recognition.
type PSM int

const (
	PSMOSDOnly             PSM = 0
	PSMAutoOSD             PSM = 1
	PSMAutoOnly            PSM = 2
	PSMAuto                PSM = 3
	PSMSingleColumn        PSM = 4
	PSMSingleBlockVertText PSM = 5
	PSMSingleBlock         PSM = 6
	PSMSingleLine          PSM = 7
	PSMSingleWord          PSM = 8
	PSMCircleWord          PSM = 9
	PSMSingleChar          PSM = 10
	PSMSparseText          PSM = 11
	PSMSparseTextOSD       PSM = 12
	PSMRawLine             PSM = 13
)

// Engine is one Tesseract handle.
// Configuration set through Init, SetPageSegMode and SetVariable applies to the
// next recognition only; Init discards variables from earlier requests.
type Engine interface {
	// Init loads the trained data for language (e.g. "eng" or "deu+eng") from datapath.
	Init(datapath, language string, oem OEM) error
	SetPageSegMode(psm PSM) error
	// SetVariable reports false if the engine refused the variable.
	SetVariable(name, value string) bool
	// SetImage binds the image file at path.
	SetImage(path string) error
	GetUTF8Text() (string, error)
	// GetHOCRText returns hOCR markup for the page with the given index.
	GetHOCRText(page int) (string, error)
	// Recycle releases the handle. The engine must not be used afterwards.
	Recycle()
}

var (
	// Initialized indicates if this package is usable
	Initialized bool = true
	// Backend names the implementation compiled into this binary
	Backend string
	Version string
)

// ResolveTessdataDir returns the directory holding *.traineddata files.
// dir may name that directory or its parent; an empty dir is returned as is
// so the engine falls back to TESSDATA_PREFIX.
func ResolveTessdataDir(dir string) string {
	if dir == "" {
		return ""
	}
	sub := filepath.Join(dir, "tessdata")
	if info, err := os.Stat(sub); err == nil && info.IsDir() {
		return sub
	}
	return dir
}

// MissingLanguages returns the components of language ("deu+eng") without a
// traineddata file in tessdataDir.
func MissingLanguages(tessdataDir, language string) []string {
	var missing []string
	for _, lang := range strings.Split(language, "+") {
		if lang == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(tessdataDir, lang+".traineddata")); err != nil {
			missing = append(missing, lang)
		}
	}
	return missing
}
