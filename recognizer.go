package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// charWhitelist is every character an arithmetic challenge can contain.
const charWhitelist = "0123456789+-"

// Recognizer reads one line of text from a preprocessed challenge image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// newRecognizer builds the backend named in cfg.
func newRecognizer(cfg CaptchaConfig) (Recognizer, error) {
	switch cfg.Backend {
	case "", "tesseract":
		return newTesseractRecognizer(), nil
	case "2captcha", "anticaptcha":
		r, err := newRemoteRecognizer(cfg.Backend, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		// Compatible services and self-hosted relays speak the same API.
		if cfg.APIURL != "" {
			r.baseURL = strings.TrimSuffix(cfg.APIURL, "/")
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported captcha backend: %q (supported: tesseract, 2captcha, anticaptcha)", cfg.Backend)
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
