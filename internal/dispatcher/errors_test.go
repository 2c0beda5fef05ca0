package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestTraceOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"stack below fmt wrapper", fmt.Errorf("tesseract failed: %w", pkgerrors.New("exit status 1")), []string{"tesseract failed: exit status 1", "errors_test.go"}},
		{"stack on top", pkgerrors.Wrap(errors.New("no image"), "setting image"), []string{"setting image: no image", "errors_test.go"}},
		{"no stack", errors.New("plain"), []string{"plain", "dispatcher.traceOf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace := traceOf(tt.err)
			for _, w := range tt.want {
				if !strings.Contains(trace, w) {
					t.Errorf("trace lacks %q:\n%s", w, trace)
				}
			}
		})
	}
}

func TestErrorCodes(t *testing.T) {
	p := Params{TessData: "/data", Language: "xyz"}
	if e := initError(p, errors.New("boom")); e.Code() != CodeInitFailed || !errors.Is(e, e.Err) {
		t.Errorf("init error: %+v", e)
	}
	if e := engineError(errors.New("boom")); e.Code() != CodeError || e.Trace == "" {
		t.Errorf("engine error: %+v", e)
	}
	if e := invalidArgs(errors.New("boom")); e.Code() != CodeInvalidArgs {
		t.Errorf("invalid args: %+v", e)
	}
}
