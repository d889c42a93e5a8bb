package scraper

import "context"

// Preview is what a destination page says about itself.
type Preview struct {
	Title       string
	Description string
}

// Previewer fetches a preview of a destination URL before a link is handed out.
type Previewer interface {
	Preview(ctx context.Context, url string) (Preview, error)
}
