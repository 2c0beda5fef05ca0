package dispatcher

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap"
)

const (
	DefaultLanguage = "eng"
	DefaultOEM      = tesswrap.OEMDefault
	DefaultPSM      = tesswrap.PSMAutoOSD

	// legacyPsmKey may be sent inside args by older clients.
	// Deprecated input shape, use the psm argument instead.
	legacyPsmKey = "psm"
)

// OutputKind selects what recognition returns.
type OutputKind int

const (
	PlainText OutputKind = iota
	HOCR
)

func (k OutputKind) String() string {
	switch k {
	case PlainText:
		return "text"
	case HOCR:
		return "hocr"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// ExtractionRequest holds the arguments of extractText and extractHocr as sent
// by a caller. Absent optional fields are nil.
type ExtractionRequest struct {
	TessData  string            `json:"tessData"`
	ImagePath string            `json:"imagePath" validate:"required"`
	Language  *string           `json:"language,omitempty"`
	OEM       *int              `json:"oem,omitempty" validate:"omitempty,min=0,max=3"`
	PSM       *int              `json:"psm,omitempty" validate:"omitempty,min=0,max=13"`
	Args      map[string]string `json:"args,omitempty"`
	// Dehyphenate joins words split at line ends. Plain text only.
	Dehyphenate bool `json:"dehyphenate,omitempty"`
}

// Variable is a single engine variable override.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Params is a normalized ExtractionRequest, ready to be applied to an engine.
type Params struct {
	TessData  string       `json:"tessData"`
	ImagePath string       `json:"-"`
	Language  string       `json:"language"`
	OEM       tesswrap.OEM `json:"oem"`
	PSM       tesswrap.PSM `json:"psm"`
	Variables []Variable   `json:"variables"`
	Output    OutputKind   `json:"output"`

	Dehyphenate bool `json:"dehyphenate,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeRequest parses and validates JSON arguments.
func DecodeRequest(arguments []byte) (ExtractionRequest, error) {
	var req ExtractionRequest
	if len(arguments) == 0 {
		return req, fmt.Errorf("missing arguments")
	}
	if err := json.Unmarshal(arguments, &req); err != nil {
		return req, fmt.Errorf("decoding arguments: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return req, fmt.Errorf("validating arguments: %w", err)
	}
	return req, nil
}

// Normalize applies the defaults and moves a legacy "psm" entry of Args into
// the page segmentation mode. Args of r is not modified.
func (r ExtractionRequest) Normalize(kind OutputKind) (Params, error) {
	p := Params{
		TessData:  r.TessData,
		ImagePath: r.ImagePath,
		Language:  DefaultLanguage,
		OEM:       DefaultOEM,
		PSM:       DefaultPSM,
		Output:    kind,

		Dehyphenate: r.Dehyphenate && kind == PlainText,
	}
	if r.Language != nil {
		p.Language = *r.Language
	}
	if r.OEM != nil {
		p.OEM = tesswrap.OEM(*r.OEM)
	}
	if r.PSM != nil {
		p.PSM = tesswrap.PSM(*r.PSM)
	}

	vars := maps.Clone(r.Args)
	if legacy, ok := vars[legacyPsmKey]; ok {
		delete(vars, legacyPsmKey)
		psm, err := strconv.Atoi(strings.TrimSpace(legacy))
		if err != nil {
			return p, fmt.Errorf("args.psm is not an integer: %q", legacy)
		}
		if psm < int(tesswrap.PSMOSDOnly) || psm > int(tesswrap.PSMRawLine) {
			return p, fmt.Errorf("args.psm out of range 0..13: %d", psm)
		}
		p.PSM = tesswrap.PSM(psm)
	}
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		p.Variables = append(p.Variables, Variable{Name: name, Value: vars[name]})
	}
	return p, nil
}
