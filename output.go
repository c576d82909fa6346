package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// RunReport summarizes one run for the operator.
type RunReport struct {
	LoggedIn      bool           `json:"logged_in"`
	LoginAttempts int            `json:"login_attempts"`
	Outcome       *OutcomeReport `json:"outcome,omitempty"`
	LoggedOut     bool           `json:"logged_out"`
	Error         string         `json:"error,omitempty"`
}

// OutcomeReport is the JSON form of a SelectionOutcome.
type OutcomeReport struct {
	Course   string    `json:"course"`
	Outcome  string    `json:"outcome"`
	Status   int       `json:"status"`
	At       time.Time `json:"at"`
	Markdown string    `json:"markdown"`
	Body     string    `json:"body"`
}

func newOutcomeReport(o SelectionOutcome) *OutcomeReport {
	return &OutcomeReport{
		Course:   o.CourseID,
		Outcome:  o.Kind.String(),
		Status:   o.Status,
		At:       o.At,
		Markdown: responseMarkdown([]byte(o.Text)),
		Body:     o.Text,
	}
}

func formatReport(w io.Writer, r RunReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "login: %s (%d attempts)\n", yesNo(r.LoggedIn, "ok", "failed"), r.LoginAttempts)
	if o := r.Outcome; o != nil {
		fmt.Fprintf(w, "course %s: %s (HTTP %d at %s)\n", o.Course, o.Outcome, o.Status, o.At.Format(time.TimeOnly))
		if o.Markdown != "" {
			fmt.Fprintf(w, "\n%s\n\n", o.Markdown)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Error)
	}
	_, err := fmt.Fprintf(w, "logout: %s\n", yesNo(r.LoggedOut, "confirmed", "not confirmed"))
	return err
}

// ChallengeReport is what the solve command prints.
type ChallengeReport struct {
	Text       string `json:"text"`
	Expression string `json:"expression,omitempty"`
	Corrected  string `json:"corrected,omitempty"`
	Answer     int    `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
}

func formatChallenge(w io.Writer, ch *Challenge, solveErr error, asJSON bool) error {
	r := ChallengeReport{Text: ch.Text, Expression: ch.Expression, Corrected: ch.Corrected, Answer: ch.Answer}
	if solveErr != nil {
		r.Error = solveErr.Error()
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "ocr:        %q\n", r.Text)
	fmt.Fprintf(w, "expression: %s\n", r.Expression)
	fmt.Fprintf(w, "corrected:  %s\n", r.Corrected)
	if r.Error != "" {
		_, err := fmt.Fprintf(w, "error:      %s\n", r.Error)
		return err
	}
	_, err := fmt.Fprintf(w, "answer:     %d\n", r.Answer)
	return err
}

// progressLine is the single rewritten status line shown while polling.
func progressLine(o SelectionOutcome) string {
	return fmt.Sprintf("\r%s\t%s", o.At.Format(time.TimeOnly), singleLine(o.Text))
}

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
