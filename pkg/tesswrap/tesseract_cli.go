//go:build !gosseract && !tesseract_pure

// This is the default implementation
package tesswrap

import (
	"bytes"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func init() {
	Backend = "cli"
	if _, err := exec.LookPath("tesseract"); err != nil {
		Initialized = false
		return
	}
	Version = cliVersion()
}

func cliVersion() string {
	output, err := exec.Command("tesseract", "--version").Output()
	if err != nil {
		return ""
	}
	// first line reads "tesseract 5.3.0"
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(strings.TrimPrefix(first, "tesseract"))
}

// listLangs returns the languages tesseract finds in tessdataDir
// (or its default location if tessdataDir is empty).
func listLangs(tessdataDir string) ([]string, error) {
	args := []string{"--list-langs"}
	if tessdataDir != "" {
		args = append([]string{"--tessdata-dir", tessdataDir}, args...)
	}
	output, err := exec.Command("tesseract", args...).Output()
	if err != nil {
		return nil, errors.Wrap(err, "listing tesseract languages")
	}
	outputLines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(outputLines) < 2 {
		return []string{}, nil
	}
	// first line is a heading
	return outputLines[1:], nil
}

// cliEngine collects the configuration of a TessBaseAPI handle and runs the
// tesseract executable once per recognition.
type cliEngine struct {
	datapath string
	language string
	oem      OEM
	psm      PSM
	vars     map[string]string
	image    string
}

// New returns an Engine backed by the tesseract executable.
func New() (Engine, error) {
	if !Initialized {
		return nil, errors.New("tesseract is not in PATH")
	}
	return &cliEngine{oem: OEMDefault, psm: PSMAutoOSD, vars: map[string]string{}}, nil
}

func (e *cliEngine) Init(datapath, language string, oem OEM) error {
	e.datapath = ResolveTessdataDir(datapath)
	e.language = language
	e.oem = oem
	e.vars = map[string]string{}
	e.image = ""
	langs, err := listLangs(e.datapath)
	if err != nil {
		return err
	}
	for _, lang := range strings.Split(language, "+") {
		if !slices.Contains(langs, lang) {
			return errors.Errorf("'%s' is not among the installed languages %v", lang, langs)
		}
	}
	return nil
}

func (e *cliEngine) SetPageSegMode(psm PSM) error {
	if psm < PSMOSDOnly || psm > PSMRawLine {
		return errors.Errorf("invalid page segmentation mode %d", psm)
	}
	e.psm = psm
	return nil
}

func (e *cliEngine) SetVariable(name, value string) bool {
	if name == "" || strings.ContainsAny(name, "= \t\n") {
		return false
	}
	e.vars[name] = value
	return true
}

func (e *cliEngine) SetImage(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "setting image")
	}
	e.image = path
	return nil
}

func (e *cliEngine) GetUTF8Text() (string, error) {
	return e.run()
}

func (e *cliEngine) GetHOCRText(page int) (string, error) {
	if page != 0 {
		return "", errors.Errorf("page %d: the tesseract CLI only renders single images", page)
	}
	return e.run("hocr")
}

func (e *cliEngine) Recycle() {
	e.vars = nil
	e.image = ""
}

func (e *cliEngine) args(configs ...string) []string {
	args := []string{e.image, "stdout"}
	if e.datapath != "" {
		args = append(args, "--tessdata-dir", e.datapath)
	}
	if e.language != "" {
		args = append(args, "-l", e.language)
	}
	args = append(args, "--oem", strconv.Itoa(int(e.oem)), "--psm", strconv.Itoa(int(e.psm)))
	for _, name := range slices.Sorted(maps.Keys(e.vars)) {
		args = append(args, "-c", name+"="+e.vars[name])
	}
	return append(args, configs...)
}

func (e *cliEngine) run(configs ...string) (string, error) {
	if e.image == "" {
		return "", errors.New("no image set")
	}
	cmd := exec.Command("tesseract", e.args(configs...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	result, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "tesseract failed: %s", strings.TrimSpace(stderr.String()))
	}
	return string(result), nil
}
