package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateTimeLayout is the datetime-local format stored in event starts.
const DateTimeLayout = "2006-01-02T15:04"

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDate turns "2024-05-10", "tomorrow" or "next friday" into YYYY-MM-DD
// relative to now. Empty input yields an empty date.
func ParseDate(text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if _, err := time.Parse("2006-01-02", text); err == nil {
		return text, nil
	}
	t, err := parseNatural(text, now)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

// ParseStart turns an event start into the stored form: a bare "HH:MM"
// is kept for recurring items, anything else becomes YYYY-MM-DDTHH:MM.
func ParseStart(text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("start cannot be empty")
	}
	if clockPattern.MatchString(text) {
		return text, nil
	}
	if _, err := time.Parse(DateTimeLayout, text); err == nil {
		return text, nil
	}
	t, err := parseNatural(text, now)
	if err != nil {
		return "", err
	}
	return t.Format(DateTimeLayout), nil
}

func parseNatural(text string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand date %q", text)
	}
	return r.Time, nil
}
