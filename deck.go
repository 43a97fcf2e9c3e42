package renderloop

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// DefaultDeckConcurrency bounds how many slides of one deck render at once.
const DefaultDeckConcurrency = 4

// Slide is one page of a deck. Slides are assembled by ascending Order;
// equal orders keep their request order.
type Slide struct {
	HTML  string `json:"html"`
	Order int    `json:"order"`
}

// DeckMetadata is written to the assembled PDF's document information.
type DeckMetadata struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Subject string `json:"subject"`
}

func (m DeckMetadata) properties() map[string]string {
	props := map[string]string{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			props[key] = value
		}
	}
	set("Title", m.Title)
	set("Author", m.Author)
	set("Subject", m.Subject)
	return props
}

// DeckJob renders several slides into one PDF.
type DeckJob struct {
	Slides   []Slide
	Metadata DeckMetadata
	// Job is the template for every slide; its Document is replaced.
	Job RenderJob
	// Concurrency bounds parallel slide renders. 0 uses
	// DefaultDeckConcurrency.
	Concurrency int
}

// DeckResult is an assembled deck.
type DeckResult struct {
	Data    []byte
	Format  Format
	Slides  int
	Pages   int
	Elapsed time.Duration
}

// RenderDeck renders every slide on the pool and merges the pages in slide
// order. Only PDF decks are supported. The first slide failure cancels the
// remaining renders and is returned with the slide's position.
func (r *Renderer) RenderDeck(ctx context.Context, deck DeckJob) (*DeckResult, error) {
	if len(deck.Slides) == 0 {
		return nil, ErrEmptyDeck
	}
	tmpl := r.merge(deck.Job)
	if tmpl.Format == "" {
		tmpl.Format = FormatPDF
	}
	format, err := ParseFormat(string(tmpl.Format))
	if err != nil {
		return nil, err
	}
	if format != FormatPDF {
		return nil, fmt.Errorf("%w: decks are assembled as pdf, got %s", ErrInvalidFormat, format)
	}
	tmpl.Format = format

	slides := slices.Clone(deck.Slides)
	slices.SortStableFunc(slides, func(a, b Slide) int { return cmp.Compare(a.Order, b.Order) })
	for i, s := range slides {
		if strings.TrimSpace(s.HTML) == "" {
			return nil, fmt.Errorf("slide %d (order %d): %w", i+1, s.Order, ErrEmptyDocument)
		}
	}

	start := time.Now()
	parts := make([][]byte, len(slides))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cmp.Or(deck.Concurrency, DefaultDeckConcurrency))
	for i, s := range slides {
		g.Go(func() error {
			job := tmpl
			job.Document = s.HTML
			res, err := r.Render(gctx, job)
			if err != nil {
				return fmt.Errorf("slide %d (order %d): %w", i+1, s.Order, err)
			}
			parts[i] = res.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data, err := assembleDeck(parts, deck.Metadata)
	if err != nil {
		return nil, err
	}
	info, err := Inspect(data, FormatPDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeckAssembly, err)
	}

	elapsed := time.Since(start)
	r.logger.Debug("deck assembled", "slides", len(slides), "pages", info.Pages, "bytes", len(data), "elapsed", elapsed)
	return &DeckResult{
		Data:    data,
		Format:  FormatPDF,
		Slides:  len(slides),
		Pages:   info.Pages,
		Elapsed: elapsed,
	}, nil
}

// assembleDeck merges PDF parts in order and applies the metadata.
func assembleDeck(parts [][]byte, meta DeckMetadata) ([]byte, error) {
	data := parts[0]
	if len(parts) > 1 {
		readers := make([]io.ReadSeeker, len(parts))
		for i, p := range parts {
			readers[i] = bytes.NewReader(p)
		}
		var buf bytes.Buffer
		if err := api.MergeRaw(readers, &buf, false, pdfConfig()); err != nil {
			return nil, fmt.Errorf("%w: merging %d slides: %v", ErrDeckAssembly, len(parts), err)
		}
		data = buf.Bytes()
	}

	if props := meta.properties(); len(props) > 0 {
		var buf bytes.Buffer
		if err := api.AddProperties(bytes.NewReader(data), &buf, props, pdfConfig()); err != nil {
			return nil, fmt.Errorf("%w: writing metadata: %v", ErrDeckAssembly, err)
		}
		data = buf.Bytes()
	}
	return data, nil
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
