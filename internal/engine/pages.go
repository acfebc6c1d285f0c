package engine

import (
	"fmt"

	"github.com/aukc1970/formwork/internal/apperr"
	"github.com/aukc1970/formwork/internal/content"
	"github.com/aukc1970/formwork/internal/models"
)

// Summary converts a page to its list representation.
func Summary(p *content.Page) models.PageSummary {
	return models.PageSummary{
		Route:     p.Route(),
		Path:      p.RelativePath(),
		Title:     p.Title(),
		Template:  p.Template(),
		Published: p.Published(),
		Routable:  p.Routable(),
		Listing:   p.Listing(),
		Level:     p.Level(),
		UpdatedAt: p.LastModified(),
	}
}

// Pages lists every non-empty page in tree order.
func (e *Engine) Pages() ([]models.PageSummary, error) {
	pages, err := e.Site().Descendants()
	if err != nil {
		return nil, fmt.Errorf("engine: pages: %w", err)
	}
	out := make([]models.PageSummary, 0, len(pages))
	for _, p := range pages {
		out = append(out, Summary(p))
	}
	return out, nil
}

// Page returns the page at route, bypassing publication and routing
// checks.
func (e *Engine) Page(route string) (*content.Page, error) {
	p, err := e.Site().FindPage(route)
	if err != nil {
		return nil, fmt.Errorf("engine: page %q: %w", route, err)
	}
	if p == nil {
		return nil, fmt.Errorf("engine: page %q: %w", route, apperr.ErrNotFound)
	}
	return p, nil
}

// Conflicts reports ordering-prefix collisions in the content tree.
func (e *Engine) Conflicts() ([]content.Conflict, error) {
	return e.Site().Conflicts()
}

// Detail returns the full representation of the page at route.
func (e *Engine) Detail(route string) (models.PageDetail, error) {
	p, err := e.Page(route)
	if err != nil {
		return models.PageDetail{}, err
	}
	files, err := p.Files()
	if err != nil {
		return models.PageDetail{}, fmt.Errorf("engine: page %q: %w", route, err)
	}
	d := models.PageDetail{
		PageSummary: Summary(p),
		Tags:        p.Tags(),
		Body:        p.Body(),
		Files:       make([]models.FileSummary, 0, len(files)),
	}
	d.Canonical, _ = p.Canonical()
	for _, f := range files {
		d.Files = append(d.Files, models.FileSummary{
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
			ModTime:  f.ModTime,
		})
	}
	return d, nil
}
