//go:build tesseract_pure && (linux || darwin)

package tesswrap

import (
	"errors"

	"github.com/ebitengine/purego"
)

// libPaths are tried in order when loading libtesseract.
var libPaths = []string{
	"libtesseract.so.5",
	"libtesseract.so",
	"/usr/lib/x86_64-linux-gnu/libtesseract.so.5",
	"/usr/lib/aarch64-linux-gnu/libtesseract.so.5",
	"/usr/local/lib/libtesseract.so",
	"libtesseract.5.dylib",
	"/opt/homebrew/lib/libtesseract.dylib",
	"/usr/local/lib/libtesseract.dylib",
}

// tryLoadLib loads the first shared object of paths that can be opened and
// returns its handle and path.
func tryLoadLib(paths ...string) (uintptr, string, error) {
	var lib uintptr
	var liberr, err error
	for _, path := range paths {
		lib, liberr = purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		err = errors.Join(liberr, err)
		if lib != 0 {
			return lib, path, nil
		}
	}
	return 0, "", err
}
