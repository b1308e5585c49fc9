package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract pulls the status markup out of a result page. It prefers the
// matching result container with the most inner text (more signal, less
// noise than the whole page) and falls back to the full page only when
// it carries enough content to be a real result and not an error shell.
//
// A matched container with near-empty inner text is a failure, not a
// success: the container can exist in the DOM template without ever
// being populated (e.g. the validation-error branch).
func Extract(html, receipt string, containers Chain, minContent int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", &ScrapeError{
			Kind:    KindExtraction,
			Receipt: receipt,
			Msg:     "result page could not be parsed",
			Err:     err,
		}
	}

	for _, sel := range containers {
		matches := doc.Find(sel)
		if matches.Length() == 0 {
			continue
		}

		best := pickRichest(matches)
		text := strings.TrimSpace(best.Text())
		if len(text) < minContent {
			return "", &ScrapeError{
				Kind:    KindInsufficientContent,
				Receipt: receipt,
				Msg:     "insufficient content",
				Snippet: truncate(text, snippetLimit),
			}
		}

		markup, err := goquery.OuterHtml(best)
		if err != nil || strings.TrimSpace(markup) == "" {
			markup, _ = best.Html()
		}
		return markup, nil
	}

	// No known container. A long page is still worth reporting whole;
	// a short one is an error shell.
	if len(strings.TrimSpace(doc.Text())) >= minContent {
		return html, nil
	}
	return "", &ScrapeError{
		Kind:    KindInsufficientContent,
		Receipt: receipt,
		Msg:     "insufficient content",
		Snippet: truncate(strings.TrimSpace(doc.Text()), snippetLimit),
	}
}

// pickRichest returns the match with the longest trimmed inner text.
func pickRichest(matches *goquery.Selection) *goquery.Selection {
	best := matches.First()
	bestLen := len(strings.TrimSpace(best.Text()))
	matches.Each(func(_ int, s *goquery.Selection) {
		if l := len(strings.TrimSpace(s.Text())); l > bestLen {
			best = s
			bestLen = l
		}
	})
	return best
}

const snippetLimit = 400

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
