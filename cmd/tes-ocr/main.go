// Command tes-ocr recognizes text in images with Tesseract, either once from
// the command line or as a service reachable over HTTP and NATS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tes-ocr",
		Short:         "Recognize text in images with Tesseract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newOneShotCmd("text"), newOneShotCmd("hocr"))
	return root
}
