//go:build gosseract

package tesswrap

import (
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
)

func init() {
	Backend = "gosseract"
	Version = gosseract.Version()
	Initialized = true
}

type gosseractEngine struct {
	client *gosseract.Client
}

// New returns an Engine backed by the cgo bindings of gosseract.
// gosseract has no way to choose the engine mode; any OEM is accepted and
// Tesseract's default is used.
func New() (Engine, error) {
	client := gosseract.NewClient()
	if err := client.DisableOutput(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "disabling tesseract debug output")
	}
	return &gosseractEngine{client: client}, nil
}

func (e *gosseractEngine) Init(datapath, language string, oem OEM) error {
	e.client.Variables = map[gosseract.SettableVariable]string{}
	dir := ResolveTessdataDir(datapath)
	if dir != "" {
		// gosseract initializes lazily, so check the trained data up front
		if missing := MissingLanguages(dir, language); len(missing) > 0 {
			return errors.Errorf("no trained data for %v in %s", missing, dir)
		}
		if err := e.client.SetTessdataPrefix(dir); err != nil {
			return errors.Wrap(err, "setting tessdata prefix")
		}
	}
	if err := e.client.SetLanguage(strings.Split(language, "+")...); err != nil {
		return errors.Wrap(err, "setting language")
	}
	return nil
}

func (e *gosseractEngine) SetPageSegMode(psm PSM) error {
	return errors.WithStack(e.client.SetPageSegMode(gosseract.PageSegMode(psm)))
}

func (e *gosseractEngine) SetVariable(name, value string) bool {
	return e.client.SetVariable(gosseract.SettableVariable(name), value) == nil
}

func (e *gosseractEngine) SetImage(path string) error {
	return errors.WithStack(e.client.SetImage(path))
}

func (e *gosseractEngine) GetUTF8Text() (string, error) {
	text, err := e.client.Text()
	return text, errors.WithStack(err)
}

func (e *gosseractEngine) GetHOCRText(page int) (string, error) {
	if page != 0 {
		return "", errors.Errorf("page %d: gosseract renders the first page only", page)
	}
	text, err := e.client.HOCRText()
	return text, errors.WithStack(err)
}

func (e *gosseractEngine) Recycle() {
	e.client.Close()
}
