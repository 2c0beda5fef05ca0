//go:build tesseract_pure && (linux || darwin)

package tesswrap

import (
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

var (
	TessVersion               func() string
	TessBaseAPICreate         func() uintptr
	TessBaseAPIDelete         func(handle uintptr)
	TessBaseAPIInit2          func(handle uintptr, datapath, language string, oem int32) int32
	TessBaseAPISetPageSegMode func(handle uintptr, mode uint32)
	TessBaseAPISetVariable    func(handle uintptr, name, value string) int32
	TessBaseAPISetImage2      func(handle uintptr, pix uintptr)
	TessBaseAPIGetUTF8Text    func(handle uintptr) *byte
	TessBaseAPIGetHOCRText    func(handle uintptr, page int32) *byte
	/*
		Close down tesseract and free up all memory. End() is equivalent to destructing and reconstructing
		your TessBaseAPI. Once End() has been used, none of the other API functions may be used other than Init.
	*/
	TessBaseAPIEnd func(handle uintptr)
	/*
		Free up recognition results and any stored image data,
		without actually freeing any recognition data that would be time-consuming to reload.
		Afterwards, you must call SetImage or TesseractRect before doing any Recognize or Get* operation.
	*/
	TessBaseAPIClear func(handle uintptr)
	TessDeleteText   func(text *byte)

	pixRead    func(filename string) uintptr
	pixDestroy func(pix *uintptr)

	// LibPath is the libtesseract that was loaded.
	LibPath string
	loadErr error
)

func init() {
	Backend = "purego"
	lib, path, err := tryLoadLib(libPaths...)
	if err != nil {
		Initialized = false
		loadErr = err
		return
	}
	LibPath = path
	purego.RegisterLibFunc(&TessVersion, lib, "TessVersion")
	purego.RegisterLibFunc(&TessBaseAPICreate, lib, "TessBaseAPICreate")
	purego.RegisterLibFunc(&TessBaseAPIDelete, lib, "TessBaseAPIDelete")
	purego.RegisterLibFunc(&TessBaseAPIInit2, lib, "TessBaseAPIInit2")
	purego.RegisterLibFunc(&TessBaseAPISetPageSegMode, lib, "TessBaseAPISetPageSegMode")
	purego.RegisterLibFunc(&TessBaseAPISetVariable, lib, "TessBaseAPISetVariable")
	purego.RegisterLibFunc(&TessBaseAPISetImage2, lib, "TessBaseAPISetImage2")
	purego.RegisterLibFunc(&TessBaseAPIGetUTF8Text, lib, "TessBaseAPIGetUTF8Text")
	purego.RegisterLibFunc(&TessBaseAPIGetHOCRText, lib, "TessBaseAPIGetHOCRText")
	purego.RegisterLibFunc(&TessBaseAPIEnd, lib, "TessBaseAPIEnd")
	purego.RegisterLibFunc(&TessBaseAPIClear, lib, "TessBaseAPIClear")
	purego.RegisterLibFunc(&TessDeleteText, lib, "TessDeleteText")
	// leptonica is a dependency of libtesseract, so its symbols resolve through lib
	purego.RegisterLibFunc(&pixRead, lib, "pixRead")
	purego.RegisterLibFunc(&pixDestroy, lib, "pixDestroy")

	Version = TessVersion()
	Initialized = true
}

// pureEngine drives a TessBaseAPI handle of libtesseract directly.
type pureEngine struct {
	handle uintptr
	pix    uintptr
}

// New creates a TessBaseAPI handle.
func New() (Engine, error) {
	if !Initialized {
		return nil, errors.Wrap(loadErr, "libtesseract could not be loaded")
	}
	handle := TessBaseAPICreate()
	if handle == 0 {
		return nil, errors.New("TessBaseAPICreate returned NULL")
	}
	return &pureEngine{handle: handle}, nil
}

func (e *pureEngine) Init(datapath, language string, oem OEM) error {
	e.freePix()
	// a fresh Init resets all variables set before
	if ret := TessBaseAPIInit2(e.handle, ResolveTessdataDir(datapath), language, int32(oem)); ret != 0 {
		return errors.Errorf("TessBaseAPIInit2 returned %d", ret)
	}
	return nil
}

func (e *pureEngine) SetPageSegMode(psm PSM) error {
	if psm < PSMOSDOnly || psm > PSMRawLine {
		return errors.Errorf("invalid page segmentation mode %d", psm)
	}
	TessBaseAPISetPageSegMode(e.handle, uint32(psm))
	return nil
}

func (e *pureEngine) SetVariable(name, value string) bool {
	return TessBaseAPISetVariable(e.handle, name, value) != 0
}

func (e *pureEngine) SetImage(path string) error {
	e.freePix()
	pix := pixRead(path)
	if pix == 0 {
		return errors.Errorf("not an image: %s", path)
	}
	e.pix = pix
	TessBaseAPISetImage2(e.handle, pix)
	return nil
}

func (e *pureEngine) GetUTF8Text() (string, error) {
	if e.pix == 0 {
		return "", errors.New("no image set")
	}
	return takeText(TessBaseAPIGetUTF8Text(e.handle))
}

func (e *pureEngine) GetHOCRText(page int) (string, error) {
	if e.pix == 0 {
		return "", errors.New("no image set")
	}
	return takeText(TessBaseAPIGetHOCRText(e.handle, int32(page)))
}

func (e *pureEngine) Recycle() {
	TessBaseAPIClear(e.handle)
	e.freePix()
	TessBaseAPIEnd(e.handle)
	TessBaseAPIDelete(e.handle)
	e.handle = 0
}

func (e *pureEngine) freePix() {
	if e.pix != 0 {
		pixDestroy(&e.pix)
		e.pix = 0
	}
}

// takeText copies a string returned by libtesseract and frees it.
func takeText(text *byte) (string, error) {
	if text == nil {
		return "", errors.New("recognition failed")
	}
	defer TessDeleteText(text)
	return bytePtrToString(text), nil
}

func bytePtrToString(p *byte) string {
	n := 0
	for ptr := unsafe.Pointer(p); *(*byte)(ptr) != 0; n++ {
		ptr = unsafe.Add(ptr, 1)
	}
	return string(unsafe.Slice(p, n))
}
