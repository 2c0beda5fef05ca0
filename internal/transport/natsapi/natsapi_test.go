package natsapi

import (
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/johbar/tesseract-ocr-bridge/internal/plugin"
	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap/tesstest"
)

func runServer(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS not ready")
	}
	t.Cleanup(ns.Shutdown)
	nc, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func setup(t *testing.T, fake *tesstest.Engine) *nats.Conn {
	t.Helper()
	nc := runServer(t)
	p := plugin.New(plugin.Options{Factory: fake.Factory(nil)})
	if err := p.Attach(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Detach)
	svc, err := RegisterNatsService(nc, p.Channel(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.Stop() })
	return nc
}

func request(t *testing.T, nc *nats.Conn, subject, data string) *nats.Msg {
	t.Helper()
	msg, err := nc.Request(subject, []byte(data), 5*time.Second)
	if err != nil {
		t.Fatalf("%s: %v", subject, err)
	}
	return msg
}

func TestEndpoints(t *testing.T) {
	nc := setup(t, &tesstest.Engine{})
	tests := []struct {
		subject     string
		data        string
		want        string
		contentType string
	}{
		{"ocr.extractText", `{"imagePath":"/a.png"}`, "text:/a.png", "text/plain"},
		{"ocr.extractHocr", `{"imagePath":"/b.png"}`, "<div class='ocr_page'>/b.png</div>", "text/html"},
		{"ocr.invoke", `{"method":"extractText","arguments":{"imagePath":"/c.png"}}`, "text:/c.png", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			msg := request(t, nc, tt.subject, tt.data)
			if code := msg.Header.Get(micro.ErrorCodeHeader); code != "" {
				t.Fatalf("error %s: %s", code, msg.Header.Get(micro.ErrorHeader))
			}
			if string(msg.Data) != tt.want {
				t.Errorf("got %q, want %q", msg.Data, tt.want)
			}
			if ct := msg.Header.Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type %q", ct)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	fake := &tesstest.Engine{Recognize: func(image string, _ bool) (string, error) {
		if image == "/crash.png" {
			panic("engine crashed")
		}
		return "ok", nil
	}}
	nc := setup(t, fake)
	tests := []struct {
		name      string
		subject   string
		data      string
		code      string
		wantTrace bool
	}{
		{"unknown method", "ocr.invoke", `{"method":"extractPdf","arguments":{}}`, "not-implemented", false},
		{"broken envelope", "ocr.invoke", `not json`, "invalid-args", false},
		{"invalid args", "ocr.extractText", `{}`, "invalid-args", false},
		{"engine fault", "ocr.extractText", `{"imagePath":"/crash.png"}`, "error", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := request(t, nc, tt.subject, tt.data)
			if code := msg.Header.Get(micro.ErrorCodeHeader); code != tt.code {
				t.Errorf("code %q, want %q (%s)", code, tt.code, msg.Header.Get(micro.ErrorHeader))
			}
			if tt.wantTrace && len(msg.Data) == 0 {
				t.Error("missing trace")
			}
		})
	}
}

func TestServiceInfo(t *testing.T) {
	nc := setup(t, &tesstest.Engine{})
	msg := request(t, nc, "$SRV.INFO."+ServiceName, "")
	for _, subject := range []string{"ocr.extractText", "ocr.extractHocr", "ocr.invoke"} {
		if !strings.Contains(string(msg.Data), subject) {
			t.Errorf("%s not listed in service info", subject)
		}
	}
}
