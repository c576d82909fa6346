package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// FailureReason says why a challenge could not be answered.
type FailureReason int

const (
	FailureNoExpression FailureReason = iota + 1
	FailureInvalidAnswer
	FailureMalformed
	FailureDecode
)

func (r FailureReason) String() string {
	switch r {
	case FailureNoExpression:
		return "no-expression"
	case FailureInvalidAnswer:
		return "invalid-answer"
	case FailureMalformed:
		return "malformed-expression"
	case FailureDecode:
		return "decode-fault"
	default:
		return "unknown"
	}
}

// SolverError is the only error CaptchaSolver.Solve returns. Every reason
// means the same thing to the caller: fetch a new challenge and retry.
type SolverError struct {
	Reason FailureReason
	// Text is the OCR or expression text the failure relates to, if any.
	Text string
	Err  error
}

func (e *SolverError) Error() string {
	msg := "captcha: " + e.Reason.String()
	if e.Text != "" {
		msg += fmt.Sprintf(" (%q)", e.Text)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SolverError) Unwrap() error { return e.Err }

// isSolverFailure reports whether err came from the solver rather than
// from transport or cancellation.
func isSolverFailure(err error) bool {
	var se *SolverError
	return errors.As(err, &se)
}

// Challenge records every intermediate of one solve. It is built once per
// challenge image and never reused.
type Challenge struct {
	Raw        []byte
	Cropped    image.Image
	Binarized  image.Image
	Text       string
	Expression string
	Corrected  string
	Answer     int
}

// CaptchaSolver turns an arithmetic challenge image into its answer.
type CaptchaSolver struct {
	recognizer Recognizer
	cfg        CaptchaConfig
	logger     *slog.Logger
}

func newCaptchaSolver(recognizer Recognizer, cfg CaptchaConfig, logger *slog.Logger) *CaptchaSolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptchaSolver{recognizer: recognizer, cfg: cfg, logger: logger}
}

// Solve returns the positive integer answer to the challenge, or a
// *SolverError. Context cancellation is passed through unwrapped so the
// caller can tell it apart from a bad read.
func (s *CaptchaSolver) Solve(ctx context.Context, raw []byte) (int, error) {
	ch, err := s.Inspect(ctx, raw)
	if err != nil {
		return 0, err
	}
	return ch.Answer, nil
}

// Inspect runs the full pipeline and returns the challenge with all
// intermediates filled in as far as the pipeline got.
func (s *CaptchaSolver) Inspect(ctx context.Context, raw []byte) (ch *Challenge, err error) {
	ch = &Challenge{Raw: raw}
	defer func() {
		if r := recover(); r != nil {
			err = &SolverError{Reason: FailureDecode, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	img, err := decodeImage(raw)
	if err != nil {
		return ch, &SolverError{Reason: FailureDecode, Err: err}
	}
	cropped, binarized, err := binarize(img, s.cfg)
	if err != nil {
		return ch, &SolverError{Reason: FailureDecode, Err: err}
	}
	ch.Cropped, ch.Binarized = cropped, binarized
	s.logger.Debug("captcha preprocessed", "size", img.Bounds().Size(), "crop", cropped.Bounds().Size())

	ch.Text, err = s.recognizer.Recognize(ctx, ch.Binarized)
	if err != nil {
		if ctx.Err() != nil {
			return ch, ctx.Err()
		}
		return ch, &SolverError{Reason: FailureDecode, Err: fmt.Errorf("recognize: %w", err)}
	}
	s.logger.Debug("ocr result", "text", ch.Text)

	return ch, s.answer(ch)
}

// answer runs extraction, correction, evaluation and validation on the
// recognized text.
func (s *CaptchaSolver) answer(ch *Challenge) error {
	expr, ok := extractExpression(ch.Text)
	if !ok {
		return &SolverError{Reason: FailureNoExpression, Text: ch.Text}
	}
	ch.Expression = expr
	ch.Corrected = correctExpression(expr, s.cfg.Confusions)
	s.logger.Debug("captcha expression", "extracted", ch.Expression, "corrected", ch.Corrected)

	value, err := evaluateExpression(ch.Corrected)
	if err != nil {
		return &SolverError{Reason: FailureMalformed, Text: ch.Corrected, Err: err}
	}
	if value <= 0 {
		return &SolverError{Reason: FailureInvalidAnswer, Text: ch.Corrected, Err: fmt.Errorf("answer %d is not positive", value)}
	}
	ch.Answer = value
	return nil
}
