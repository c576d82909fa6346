//go:build !notesseract

package main

import (
	"context"
	"image"

	"github.com/otiai10/gosseract/v2"
)

// tesseractRecognizer runs libtesseract in-process through gosseract.
type tesseractRecognizer struct{}

func newTesseractRecognizer() Recognizer {
	return tesseractRecognizer{}
}

func (tesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", err
	}
	if err := client.SetWhitelist(charWhitelist); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", err
	}
	return client.Text()
}
