package main

import (
	"testing"
)

func TestCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "text", "hocr"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %s not found: %v", name, err)
		}
	}
	text, _, _ := root.Find([]string{"text"})
	if text.Flags().Lookup("dehyphenate") == nil {
		t.Error("text lacks --dehyphenate")
	}
	hocr, _, _ := root.Find([]string{"hocr"})
	if hocr.Flags().Lookup("dehyphenate") != nil {
		t.Error("hocr must not offer --dehyphenate")
	}
	for _, flag := range []string{"tessdata", "lang", "oem", "psm", "var"} {
		if hocr.Flags().Lookup(flag) == nil {
			t.Errorf("hocr lacks --%s", flag)
		}
	}
}

func TestOneShotNeedsImage(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"text"})
	if err := root.Execute(); err == nil {
		t.Error("expected error without image argument")
	}
}
