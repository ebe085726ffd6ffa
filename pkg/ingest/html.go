package ingest

import (
	"io"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/knowledge"
)

const headingSelector = "h1, h2, h3, h4"

// HTML splits an HTML page into documentation entries, one per heading
// section. Pages without headings yield a single entry titled by the
// document title.
func HTML(r io.Reader, opts SourceOptions) ([]knowledge.StoreRequest, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "parse html")
	}
	opts.applyDefaults()

	var requests []knowledge.StoreRequest
	headings := doc.Find(headingSelector)
	if headings.Length() == 0 {
		title := cleanText(doc.Find("title").First().Text())
		body := cleanText(doc.Find("body").Text())
		if body != "" {
			requests = append(requests, documentationRequest(title, []string{body}, opts))
		}
		return requests, nil
	}

	headings.Each(func(_ int, s *goquery.Selection) {
		heading := cleanText(s.Text())
		section := cleanText(s.NextUntil(headingSelector).Text())
		if heading == "" && section == "" {
			return
		}
		var body []string
		if section != "" {
			body = []string{section}
		}
		requests = append(requests, documentationRequest(heading, body, opts))
	})
	return requests, nil
}
