// Package ingest converts documentation sources into knowledge store
// requests. Markdown pages split on headings into documentation entries
// with fenced code lifted out as examples; HTML pages split on heading
// sections. Converters only produce requests, they never write to the
// store themselves.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/knowledge"
)

const (
	defaultRelevance  = 0.7
	defaultConfidence = 0.9
)

// SourceOptions carries provenance for produced entries. Source is
// required; everything else is optional.
type SourceOptions struct {
	Source     string
	PageID     string
	FilePath   string
	Tags       []string
	Relevance  float64
	Confidence float64
}

func (o *SourceOptions) applyDefaults() {
	if o.Relevance <= 0 {
		o.Relevance = defaultRelevance
	}
	if o.Confidence <= 0 {
		o.Confidence = defaultConfidence
	}
}

// File reads path and converts it according to its extension. The file
// path becomes both Source and FilePath unless the options name them.
func File(path string, opts SourceOptions) ([]knowledge.StoreRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "read source file").
			WithContext("path", path)
	}
	if opts.Source == "" {
		opts.Source = path
	}
	if opts.FilePath == "" {
		opts.FilePath = path
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return Markdown(data, opts), nil
	case ".html", ".htm":
		return HTML(strings.NewReader(string(data)), opts)
	default:
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "unsupported source format").
			WithContext("path", path)
	}
}

func documentationRequest(heading string, body []string, opts SourceOptions) knowledge.StoreRequest {
	content := strings.Join(body, "\n\n")
	if heading != "" {
		if content == "" {
			content = heading
		} else {
			content = heading + "\n\n" + content
		}
	}
	tags := append([]string(nil), opts.Tags...)
	if slug := slugify(heading); slug != "" {
		tags = append(tags, slug)
	}
	return knowledge.StoreRequest{
		Type:    knowledge.TypeDocumentation,
		Content: content,
		Metadata: knowledge.Metadata{
			Source:     opts.Source,
			PageID:     opts.PageID,
			FilePath:   opts.FilePath,
			Tags:       tags,
			Relevance:  opts.Relevance,
			Confidence: opts.Confidence,
		},
	}
}

func exampleRequest(code, language, heading string, opts SourceOptions) knowledge.StoreRequest {
	tags := append([]string(nil), opts.Tags...)
	if language != "" {
		tags = append(tags, strings.ToLower(language))
	}
	if slug := slugify(heading); slug != "" {
		tags = append(tags, slug)
	}
	return knowledge.StoreRequest{
		Type:    knowledge.TypeExample,
		Content: strings.TrimRight(code, "\n"),
		Metadata: knowledge.Metadata{
			Source:     opts.Source,
			PageID:     opts.PageID,
			FilePath:   opts.FilePath,
			Tags:       tags,
			Relevance:  opts.Relevance,
			Confidence: opts.Confidence,
		},
	}
}

// slugify turns a heading into a tag: lowercased, non-alphanumerics
// collapsed to single dashes.
func slugify(heading string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(heading) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(sb.String(), "-")
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
