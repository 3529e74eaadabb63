// Package actions runs single page operations and turns engine errors into classified failures.
package actions

import (
	"fmt"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/metrics"
)

// Runner executes page actions with shared timeouts
type Runner struct {
	NavTimeout    time.Duration
	ActionTimeout time.Duration
	Human         *Human
}

// NewRunner creates a runner with human pacing enabled for Type and Scroll
func NewRunner(navTimeout, actionTimeout time.Duration) *Runner {
	return &Runner{
		NavTimeout:    navTimeout,
		ActionTimeout: actionTimeout,
		Human:         NewHuman(),
	}
}

// NavigateResult is returned by Navigate
type NavigateResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ContentResult is returned by Content
type ContentResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Navigate loads url and waits for the DOM to be ready
func (r *Runner) Navigate(page engine.Page, url string) (result *NavigateResult, err error) {
	defer observe("navigate", time.Now(), &err)

	if err := page.Goto(url, r.NavTimeout); err != nil {
		return nil, failure.Wrap(failure.NavigationFailure, "navigate", "could not load "+url, err)
	}

	title, err := page.Title()
	if err != nil {
		return nil, fmt.Errorf("failed to read title: %w", err)
	}
	return &NavigateResult{URL: page.URL(), Title: title}, nil
}

// Screenshot captures the viewport, or the whole page when fullPage is set, as PNG
func (r *Runner) Screenshot(page engine.Page, fullPage bool) (data []byte, err error) {
	defer observe("screenshot", time.Now(), &err)

	data, err = page.Screenshot(fullPage)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return data, nil
}

// Click clicks the first element matching selector
func (r *Runner) Click(page engine.Page, selector string) (err error) {
	defer observe("click", time.Now(), &err)

	if err := page.Click(selector, r.ActionTimeout); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// Type enters text into selector. With humanize the keys are typed one by one.
func (r *Runner) Type(page engine.Page, selector, text string, humanize bool) (err error) {
	defer observe("type", time.Now(), &err)

	if humanize && r.Human != nil {
		if err := r.Human.Type(page, selector, text, r.ActionTimeout); err != nil {
			return fmt.Errorf("failed to type into %s: %w", selector, err)
		}
		return nil
	}

	if err := page.Fill(selector, text, r.ActionTimeout); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// Scroll moves the page down the way a reader would
func (r *Runner) Scroll(page engine.Page) (distance float64, err error) {
	defer observe("scroll", time.Now(), &err)

	human := r.Human
	if human == nil {
		human = NewHuman()
	}
	distance, err = human.Scroll(page)
	if err != nil {
		return distance, fmt.Errorf("failed to scroll: %w", err)
	}
	return distance, nil
}

// Evaluate runs a JavaScript expression or function in the page
func (r *Runner) Evaluate(page engine.Page, expression string) (value any, err error) {
	defer observe("evaluate", time.Now(), &err)

	value, err = page.Evaluate(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return value, nil
}

// Content returns the page HTML with its URL and title
func (r *Runner) Content(page engine.Page) (result *ContentResult, err error) {
	defer observe("content", time.Now(), &err)

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	title, err := page.Title()
	if err != nil {
		return nil, fmt.Errorf("failed to read title: %w", err)
	}
	return &ContentResult{URL: page.URL(), Title: title, HTML: html}, nil
}

func observe(action string, started time.Time, err *error) {
	metrics.ObserveAction(action, started, *err)
}
