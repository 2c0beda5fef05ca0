package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/johbar/tesseract-ocr-bridge/internal/channel"
	"github.com/johbar/tesseract-ocr-bridge/internal/config"
	"github.com/johbar/tesseract-ocr-bridge/internal/dispatcher"
	"github.com/johbar/tesseract-ocr-bridge/internal/plugin"
)

type oneShotFlags struct {
	tessdata    string
	language    string
	oem         int
	psm         int
	vars        map[string]string
	dehyphenate bool
}

func newOneShotCmd(kind string) *cobra.Command {
	output := dispatcher.PlainText
	short := "Print the text recognized in an image"
	if kind == "hocr" {
		output = dispatcher.HOCR
		short = "Print the hOCR markup of an image"
	}
	var flags oneShotFlags
	cmd := &cobra.Command{
		Use:   kind + " <image>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, args[0], output, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.tessdata, "tessdata", "", "tessdata directory or its parent (default $TES_TESSDATA_PREFIX)")
	f.StringVarP(&flags.language, "lang", "l", dispatcher.DefaultLanguage, "languages, e.g. deu+eng")
	f.IntVar(&flags.oem, "oem", int(dispatcher.DefaultOEM), "OCR engine mode (0-3)")
	f.IntVar(&flags.psm, "psm", int(dispatcher.DefaultPSM), "page segmentation mode (0-13)")
	f.StringToStringVarP(&flags.vars, "var", "c", nil, "engine variables, e.g. -c tessedit_char_whitelist=0123456789")
	if output == dispatcher.PlainText {
		f.BoolVar(&flags.dehyphenate, "dehyphenate", false, "join words hyphenated at line ends")
	}
	return cmd
}

// runOneShot attaches an engine, recognizes one image and prints the result.
func runOneShot(cmd *cobra.Command, image string, output dispatcher.OutputKind, flags oneShotFlags) error {
	conf, err := config.NewTesConfigFromEnv()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if conf.Debug {
		logger = conf.NewLogger()
	}
	abs, err := filepath.Abs(image)
	if err != nil {
		return err
	}
	req := dispatcher.ExtractionRequest{
		TessData:    flags.tessdata,
		ImagePath:   abs,
		Language:    &flags.language,
		OEM:         &flags.oem,
		PSM:         &flags.psm,
		Args:        flags.vars,
		Dehyphenate: flags.dehyphenate,
	}
	if req.TessData == "" {
		req.TessData = conf.TessdataPrefix
	}
	params, err := req.Normalize(output)
	if err != nil {
		return err
	}

	p := plugin.New(plugin.Options{Logger: logger})
	if err := p.Attach(); err != nil {
		return err
	}
	defer p.Detach()
	reply := channel.NewReply()
	p.Dispatcher().Extract(params, reply)
	resp, err := reply.Wait(context.Background())
	if err != nil {
		return err
	}
	if resp.Err != nil {
		if conf.Debug && resp.Err.Details != "" {
			fmt.Fprintln(os.Stderr, resp.Err.Details)
		}
		return resp.Err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
	return err
}
