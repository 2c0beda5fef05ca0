// Package httpapi exposes the method channel over HTTP.
package httpapi

import (
	"context"
	"errors"
	"expvar"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	ginexpvar "github.com/gin-contrib/expvar"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	sloggin "github.com/samber/slog-gin"

	"github.com/johbar/tesseract-ocr-bridge/internal/channel"
	"github.com/johbar/tesseract-ocr-bridge/internal/dispatcher"
)

var requests = expvar.NewMap("tesseract_http_requests")

// Invoker is implemented by *channel.MethodChannel.
type Invoker interface {
	Call(ctx context.Context, call channel.MethodCall) (channel.Response, error)
}

// Health describes the engine behind the channel.
type Health struct {
	Backend  string `json:"backend"`
	Version  string `json:"version"`
	Attached bool   `json:"attached"`
}

type Options struct {
	// MaxImageSize limits uploaded images in bytes. Zero means unlimited.
	MaxImageSize int64
	// Health is reported on /healthz.
	Health func() Health
	Logger *slog.Logger
}

// Server handles HTTP requests by invoking methods on a channel.
type Server struct {
	ch   Invoker
	opts Options
	log  *slog.Logger
}

func New(ch Invoker, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Health == nil {
		opts.Health = func() Health { return Health{} }
	}
	return &Server{ch: ch, opts: opts, log: opts.Logger}
}

// Router returns the gin engine serving all endpoints.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(sloggin.New(s.log), gin.Recovery())
	router.POST("/channel/:method", s.invoke)
	router.POST("/upload/:method", s.upload)
	router.GET("/healthz", s.health)
	router.GET("/debug/vars", ginexpvar.Handler())
	return router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("HTTP shutdown failed", "err", err)
		}
	}()
	s.log.Info("HTTP server started", "address", addr)
	defer s.log.Info("HTTP server stopped")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// invoke passes the request body as arguments to the method named in the path.
func (s *Server) invoke(c *gin.Context) {
	method := c.Param("method")
	args, err := c.GetRawData()
	if err != nil {
		s.abort(c, http.StatusBadRequest, dispatcher.CodeInvalidArgs, err.Error())
		return
	}
	s.call(c, method, args)
}

// upload stores the multipart file "image" in a temporary file and passes its
// path along with the JSON of the form field "arguments".
func (s *Server) upload(c *gin.Context) {
	method := c.Param("method")
	limit := s.opts.MaxImageSize
	if limit > 0 {
		// leave room for the multipart overhead of the other fields
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.tooLarge(c)
			return
		}
		s.abort(c, http.StatusBadRequest, dispatcher.CodeInvalidArgs, "missing image: "+err.Error())
		return
	}
	if limit > 0 && fh.Size > limit {
		s.tooLarge(c)
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.abort(c, http.StatusBadRequest, dispatcher.CodeInvalidArgs, err.Error())
		return
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		s.abort(c, http.StatusBadRequest, dispatcher.CodeInvalidArgs, err.Error())
		return
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		s.abort(c, http.StatusUnsupportedMediaType, dispatcher.CodeInvalidArgs, "not an image: "+mtype.String())
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.abort(c, http.StatusInternalServerError, dispatcher.CodeError, err.Error())
		return
	}

	tmp, err := os.CreateTemp("", "tes-ocr-*"+mtype.Extension())
	if err != nil {
		s.abort(c, http.StatusInternalServerError, dispatcher.CodeError, err.Error())
		return
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			s.log.Error("could not remove temporary file", "err", err)
		}
	}()
	_, err = io.Copy(tmp, f)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.abort(c, http.StatusInternalServerError, dispatcher.CodeError, err.Error())
		return
	}
	s.log.Debug("Image uploaded", "mimetype", mtype.String(), "size", humanize.IBytes(uint64(fh.Size)), "path", tmp.Name())

	args := map[string]any{}
	if raw := c.PostForm("arguments"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			s.abort(c, http.StatusUnprocessableEntity, dispatcher.CodeInvalidArgs, "decoding arguments: "+err.Error())
			return
		}
		// a JSON null leaves no map behind
		if args == nil {
			args = map[string]any{}
		}
	}
	args["imagePath"] = tmp.Name()
	body, err := json.Marshal(args)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, dispatcher.CodeError, err.Error())
		return
	}
	s.call(c, method, body)
}

// call blocks until the reply arrived. A client going away does not cancel
// the submitted work.
func (s *Server) call(c *gin.Context, method string, args []byte) {
	requests.Add(method, 1)
	resp, err := s.ch.Call(c.Request.Context(), channel.MethodCall{Method: method, Arguments: args})
	if err != nil {
		s.log.Warn("Client gone before reply", "method", method, "err", err)
		c.AbortWithStatus(499)
		return
	}
	switch {
	case resp.NotImplemented:
		s.abort(c, http.StatusNotImplemented, dispatcher.CodeNotImplemented, "method not implemented: "+method)
	case resp.Err != nil:
		c.AbortWithStatusJSON(statusOf(resp.Err.Code), resp.Err)
	case method == dispatcher.MethodExtractHocr:
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(resp.Text))
	default:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(resp.Text))
	}
}

func (s *Server) health(c *gin.Context) {
	h := s.opts.Health()
	status := http.StatusOK
	if !h.Attached {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func (s *Server) tooLarge(c *gin.Context) {
	s.abort(c, http.StatusRequestEntityTooLarge, dispatcher.CodeInvalidArgs,
		"image exceeds "+humanize.IBytes(uint64(s.opts.MaxImageSize)))
}

func (s *Server) abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, &channel.ErrorReply{Code: code, Message: message})
}

func statusOf(code string) int {
	switch code {
	case dispatcher.CodeInitFailed, dispatcher.CodeInvalidArgs:
		return http.StatusUnprocessableEntity
	case dispatcher.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
