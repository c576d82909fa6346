//go:build notesseract

package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
)

// tesseractRecognizer shells out to the tesseract binary. This build
// avoids the cgo dependency on libtesseract.
type tesseractRecognizer struct {
	bin string
}

func newTesseractRecognizer() Recognizer {
	return tesseractRecognizer{bin: "tesseract"}
}

func (r tesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, r.bin, "stdin", "stdout",
		"--psm", "7",
		"-c", "tessedit_char_whitelist="+charWhitelist)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", r.bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
