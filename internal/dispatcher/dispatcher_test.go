package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/johbar/tesseract-ocr-bridge/internal/channel"
	"github.com/johbar/tesseract-ocr-bridge/internal/engine"
	"github.com/johbar/tesseract-ocr-bridge/internal/looper"
	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap"
	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap/tesstest"
)

type fixture struct {
	fake    *tesstest.Engine
	engines *engine.Manager
	main    *looper.Looper
	ch      *channel.MethodChannel
	d       *Dispatcher
}

func newFixture(t *testing.T, fake *tesstest.Engine, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		fake:    fake,
		engines: engine.NewManager(fake.Factory(nil), nil),
		main:    looper.New("main", nil),
		ch:      channel.New("tesseract_ocr", nil),
	}
	if err := f.engines.Attach(); err != nil {
		t.Fatal(err)
	}
	f.d = New(f.engines, f.main, opts)
	f.ch.SetMethodCallHandler(f.d)
	t.Cleanup(func() {
		f.engines.Detach()
		f.main.QuitSafely()
		f.main.Wait()
	})
	return f
}

func (f *fixture) call(t *testing.T, method string, args any) channel.Response {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := f.ch.Call(ctx, channel.MethodCall{Method: method, Arguments: raw})
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return resp
}

func TestExtractTextSequence(t *testing.T) {
	f := newFixture(t, &tesstest.Engine{}, Options{})
	resp := f.call(t, MethodExtractText, map[string]any{
		"tessData":  "/data",
		"imagePath": "/img.png",
		"language":  "deu",
		"args":      map[string]string{"tessedit_char_whitelist": "abc", "psm": "6"},
	})
	if resp.Err != nil || resp.NotImplemented {
		t.Fatalf("unexpected reply %+v", resp)
	}
	if resp.Text != "text:/img.png" {
		t.Errorf("Text = %q", resp.Text)
	}
	want := []string{
		"Init[/data deu 3]",
		"SetPageSegMode[6]",
		"SetVariable[tessedit_char_whitelist abc]",
		"SetImage[/img.png]",
		"GetUTF8Text[]",
	}
	var got []string
	for _, c := range f.fake.Calls() {
		got = append(got, c.String())
	}
	if !slices.Equal(got, want) {
		t.Errorf("engine calls\n got %v\nwant %v", got, want)
	}
}

func TestExtractHocr(t *testing.T) {
	f := newFixture(t, &tesstest.Engine{}, Options{})
	resp := f.call(t, MethodExtractHocr, map[string]any{"tessData": "/data", "imagePath": "/scan.tif"})
	if resp.Text != "<div class='ocr_page'>/scan.tif</div>" {
		t.Errorf("Text = %q", resp.Text)
	}
	calls := f.fake.Calls()
	last := calls[len(calls)-1]
	if last.String() != "GetHOCRText[0]" {
		t.Errorf("last call %s, want GetHOCRText[0]", last)
	}
	if calls[1].String() != "SetPageSegMode[1]" {
		t.Errorf("default psm not applied: %s", calls[1])
	}
}

func TestTessdataFallsBackToPrefix(t *testing.T) {
	f := newFixture(t, &tesstest.Engine{}, Options{TessdataPrefix: "/usr/share/tessdata"})
	f.call(t, MethodExtractText, map[string]any{"imagePath": "/img.png"})
	if c := f.fake.Calls()[0]; c.Args[0] != "/usr/share/tessdata" {
		t.Errorf("Init datapath = %v", c.Args[0])
	}
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t, &tesstest.Engine{}, Options{})
	resp := f.call(t, "extractPdf", map[string]any{"imagePath": "/img.png"})
	if !resp.NotImplemented {
		t.Errorf("got %+v, want NotImplemented", resp)
	}
	if n := len(f.fake.Calls()); n != 0 {
		t.Errorf("engine called %d times", n)
	}
}

func TestInvalidArguments(t *testing.T) {
	f := newFixture(t, &tesstest.Engine{}, Options{})
	for name, args := range map[string]any{
		"missing image": map[string]any{"tessData": "/data"},
		"bad psm":       map[string]any{"imagePath": "/img.png", "psm": 42},
		"bad legacy":    map[string]any{"imagePath": "/img.png", "args": map[string]string{"psm": "auto"}},
		"legacy range":  map[string]any{"imagePath": "/img.png", "args": map[string]string{"psm": "99"}},
	} {
		t.Run(name, func(t *testing.T) {
			resp := f.call(t, MethodExtractText, args)
			if resp.Err == nil || resp.Err.Code != CodeInvalidArgs {
				t.Errorf("got %+v, want %s", resp, CodeInvalidArgs)
			}
		})
	}
	if n := len(f.fake.Calls()); n != 0 {
		t.Errorf("engine called %d times", n)
	}
}

func TestRecognitionPanic(t *testing.T) {
	fake := &tesstest.Engine{Recognize: func(string, bool) (string, error) {
		panic("segfault in recognizer")
	}}
	f := newFixture(t, fake, Options{})
	resp := f.call(t, MethodExtractText, map[string]any{"imagePath": "/img.png"})
	if resp.Err == nil || resp.Err.Code != CodeError {
		t.Fatalf("got %+v, want code %s", resp, CodeError)
	}
	if !strings.Contains(resp.Err.Message, "segfault in recognizer") {
		t.Errorf("Message = %q", resp.Err.Message)
	}
	if resp.Err.Details == "" {
		t.Error("missing trace")
	}

	// the worker survives the panic
	fake.Recognize = nil
	resp = f.call(t, MethodExtractText, map[string]any{"imagePath": "/next.png"})
	if resp.Text != "text:/next.png" {
		t.Errorf("after panic: got %+v", resp)
	}
}

func TestRecognitionError(t *testing.T) {
	fake := &tesstest.Engine{Recognize: func(string, bool) (string, error) {
		return "", errors.New("cannot read image")
	}}
	f := newFixture(t, fake, Options{})
	resp := f.call(t, MethodExtractHocr, map[string]any{"imagePath": "/img.png"})
	if resp.Err == nil || resp.Err.Code != CodeError {
		t.Fatalf("got %+v, want code %s", resp, CodeError)
	}
	if !strings.Contains(resp.Err.Message, "cannot read image") {
		t.Errorf("Message = %q", resp.Err.Message)
	}
	if !strings.Contains(resp.Err.Details, "dispatcher") {
		t.Errorf("trace does not name the failing frames:\n%s", resp.Err.Details)
	}
}

func TestInitFailureReportedAndContinues(t *testing.T) {
	fake := &tesstest.Engine{InitErr: errors.New("Failed loading language 'xyz'")}
	f := newFixture(t, fake, Options{})
	resp := f.call(t, MethodExtractText, map[string]any{"tessData": "/data", "imagePath": "/img.png", "language": "xyz"})
	if resp.Err == nil || resp.Err.Code != CodeInitFailed {
		t.Fatalf("got %+v, want code %s", resp, CodeInitFailed)
	}
	for _, part := range []string{"/data", "xyz", "Failed loading language"} {
		if !strings.Contains(resp.Err.Message, part) {
			t.Errorf("Message %q does not mention %q", resp.Err.Message, part)
		}
	}

	// Detach drains the worker, so all remaining steps have run afterwards.
	f.engines.Detach()
	want := []string{"Init", "SetPageSegMode", "SetImage", "GetUTF8Text", "Recycle"}
	if got := f.fake.Methods(); !slices.Equal(got, want) {
		t.Errorf("engine calls %v, want %v", got, want)
	}
}

func TestRejectedVariableIsSkipped(t *testing.T) {
	fake := &tesstest.Engine{RejectVariables: []string{"no_such_var"}}
	f := newFixture(t, fake, Options{})
	resp := f.call(t, MethodExtractText, map[string]any{
		"imagePath": "/img.png",
		"args":      map[string]string{"no_such_var": "1", "user_defined_dpi": "300"},
	})
	if resp.Text != "text:/img.png" {
		t.Errorf("got %+v", resp)
	}
	want := []string{"Init", "SetPageSegMode", "SetVariable", "SetVariable", "SetImage", "GetUTF8Text"}
	if got := f.fake.Methods(); !slices.Equal(got, want) {
		t.Errorf("engine calls %v, want %v", got, want)
	}
}

func TestRequestsRunInSubmissionOrder(t *testing.T) {
	const n = 20
	f := newFixture(t, &tesstest.Engine{Delay: time.Millisecond}, Options{})
	replies := make([]*channel.Reply, n)
	for i := range n {
		replies[i] = channel.NewReply()
		args := fmt.Sprintf(`{"imagePath":"/img-%02d.png"}`, i)
		f.ch.Invoke(channel.MethodCall{Method: MethodExtractText, Arguments: []byte(args)}, replies[i])
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, r := range replies {
		resp, err := r.Wait(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("text:/img-%02d.png", i); resp.Text != want {
			t.Errorf("reply %d = %q, want %q", i, resp.Text, want)
		}
	}
	var images []string
	for _, c := range f.fake.Calls() {
		if c.Method == "SetImage" {
			images = append(images, c.Args[0].(string))
		}
	}
	if !slices.IsSorted(images) || len(images) != n {
		t.Errorf("images processed out of order: %v", images)
	}
	if f.fake.Overlapped() {
		t.Error("engine calls overlapped")
	}
}

func TestConcurrentCallersNeverOverlap(t *testing.T) {
	const n = 16
	f := newFixture(t, &tesstest.Engine{Delay: time.Millisecond}, Options{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			image := fmt.Sprintf("/img-%d.png", i)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			resp, err := f.ch.Call(ctx, channel.MethodCall{
				Method:    MethodExtractText,
				Arguments: []byte(`{"imagePath":"` + image + `"}`),
			})
			if err != nil || resp.Text != "text:"+image {
				t.Errorf("caller %d got %+v, %v", i, resp, err)
			}
		}()
	}
	wg.Wait()
	if f.fake.Overlapped() {
		t.Error("engine calls overlapped")
	}
	if got := len(f.fake.Calls()); got != n*4 {
		t.Errorf("%d engine calls, want %d", got, n*4)
	}
}

func TestRequestAfterDetach(t *testing.T) {
	f := newFixture(t, &tesstest.Engine{}, Options{})
	f.engines.Detach()
	resp := f.call(t, MethodExtractText, map[string]any{"imagePath": "/img.png"})
	if resp.Err == nil || resp.Err.Code != CodeError {
		t.Fatalf("got %+v, want code %s", resp, CodeError)
	}
	if got := f.fake.Methods(); !slices.Equal(got, []string{"Recycle"}) {
		t.Errorf("engine calls after detach: %v", got)
	}
}

func TestExtractTyped(t *testing.T) {
	f := newFixture(t, &tesstest.Engine{}, Options{})
	reply := channel.NewReply()
	f.d.Extract(Params{ImagePath: "/img.png", Language: "eng", OEM: tesswrap.OEMLSTMOnly, PSM: tesswrap.PSMSingleLine, Output: HOCR}, reply)
	resp, err := reply.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "<div class='ocr_page'>/img.png</div>" {
		t.Errorf("Text = %q", resp.Text)
	}
}

type memCache struct {
	mu   sync.Mutex
	m    map[string]string
	puts chan string
}

func (c *memCache) Get(key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.m[key]
	return text, ok, nil
}

func (c *memCache) Put(key, text string) error {
	c.mu.Lock()
	c.m[key] = text
	c.mu.Unlock()
	c.puts <- key
	return nil
}

func TestCachedText(t *testing.T) {
	mc := &memCache{m: map[string]string{}, puts: make(chan string, 4)}
	f := newFixture(t, &tesstest.Engine{}, Options{Cache: mc})
	image := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(image, []byte("not really a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	args := map[string]any{"imagePath": image}

	first := f.call(t, MethodExtractText, args)
	select {
	case <-mc.puts:
	case <-time.After(5 * time.Second):
		t.Fatal("text was not cached")
	}
	second := f.call(t, MethodExtractText, args)
	if first.Text != second.Text || second.Text != "text:"+image {
		t.Errorf("first %q, second %q", first.Text, second.Text)
	}
	recognized := 0
	for _, m := range f.fake.Methods() {
		if m == "GetUTF8Text" {
			recognized++
		}
	}
	if recognized != 1 {
		t.Errorf("recognized %d times, want 1", recognized)
	}

	// other output kinds are cached separately
	hocr := f.call(t, MethodExtractHocr, args)
	if !strings.HasPrefix(hocr.Text, "<div") {
		t.Errorf("hocr served from text cache: %q", hocr.Text)
	}
}

func TestDehyphenate(t *testing.T) {
	fake := &tesstest.Engine{Recognize: func(_ string, hocr bool) (string, error) {
		if hocr {
			return "<span>Silben-</span><span>trennung</span>", nil
		}
		return "Silben-\ntrennung\n", nil
	}}
	f := newFixture(t, fake, Options{})
	args := map[string]any{"imagePath": "/img.png", "dehyphenate": true}
	if resp := f.call(t, MethodExtractText, args); resp.Text != "Silbentrennung\n" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp := f.call(t, MethodExtractHocr, args); resp.Text != "<span>Silben-</span><span>trennung</span>" {
		t.Errorf("hocr must stay untouched, got %q", resp.Text)
	}
}

func TestDehyphenateLongLine(t *testing.T) {
	long := strings.Repeat("Zeile ", 20_000)
	fake := &tesstest.Engine{Recognize: func(string, bool) (string, error) {
		return long + "Ab-\nsatz\n", nil
	}}
	f := newFixture(t, fake, Options{})
	resp := f.call(t, MethodExtractText, map[string]any{"imagePath": "/img.png", "dehyphenate": true})
	if resp.Err != nil {
		t.Fatalf("long line turned into an error: %+v", resp.Err)
	}
	if !strings.HasSuffix(resp.Text, "Absatz\n") || len(resp.Text) < len(long) {
		t.Errorf("got %d bytes ending in %q", len(resp.Text), resp.Text[max(0, len(resp.Text)-20):])
	}
}
