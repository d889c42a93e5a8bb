package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// descriptionSelectors are tried in order; the first non-empty content wins.
var descriptionSelectors = []string{
	`meta[name="description"]`,
	`meta[property="og:description"]`,
}

// RodPreviewer renders destination pages in a headless browser.
type RodPreviewer struct {
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewRodPreviewer creates a RodPreviewer that gives up on a page after timeout.
func NewRodPreviewer(timeout time.Duration, logger logrus.FieldLogger) *RodPreviewer {
	return &RodPreviewer{
		timeout: timeout,
		log:     logger.WithField("component", "previewer"),
	}
}

// Preview launches a browser, loads url and reads its title and description.
func (s *RodPreviewer) Preview(ctx context.Context, url string) (p Preview, err error) {
	log := s.log.WithField("url", url)

	path, exists := launcher.LookPath()
	if !exists {
		return Preview{}, errors.New("rod browser dependency not found")
	}
	u, err := launcher.New().Bin(path).Launch()
	if err != nil {
		return Preview{}, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err = browser.Connect(); err != nil {
		return Preview{}, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Error closing rod browser instance")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return Preview{}, fmt.Errorf("failed to create page: %w", err)
	}
	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return Preview{}, fmt.Errorf("preview timed out for %s: %w", url, pageCtx.Err())
		}
		return Preview{}, fmt.Errorf("failed waiting for page load: %w", err)
	}

	info, err := page.Info()
	if err != nil {
		return Preview{}, fmt.Errorf("failed to read page info: %w", err)
	}
	p.Title = strings.TrimSpace(info.Title)

	for _, selector := range descriptionSelectors {
		has, el, err := page.Has(selector)
		if err != nil || !has {
			continue
		}
		content, err := el.Attribute("content")
		if err != nil || content == nil {
			continue
		}
		if d := strings.TrimSpace(*content); d != "" {
			p.Description = d
			break
		}
	}

	log.WithField("title", p.Title).Debug("Preview fetched")
	return p, nil
}

var _ Previewer = (*RodPreviewer)(nil)
