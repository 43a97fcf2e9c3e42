package renderloop

// Notes:
// - Slides render on fakeProcess; each slide's document is the page width in
//   points, so the merged page dimensions reveal the assembly order.

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// slidePDF renders a one-page PDF as wide as the number in the document.
func slidePDF(job *RenderJob) []byte {
	width, err := strconv.Atoi(strings.TrimSpace(job.Document))
	if err != nil {
		width = 612
	}
	return sizedPDF(1, width)
}

func newDeckRenderer(t *testing.T, opts ...Option) *Renderer {
	t.Helper()
	f := &fakeFactory{setup: func(_ int, p *fakeProcess) { p.output = slidePDF }}
	p := newTestPool(t, f, PoolConfig{Size: 2})
	return NewRenderer(p, append([]Option{WithLogger(discardLogger())}, opts...)...)
}

func pageWidths(t *testing.T, data []byte) []int {
	t.Helper()
	dims, err := api.PageDims(bytes.NewReader(data), pdfConfig())
	if err != nil {
		t.Fatalf("PageDims() error = %v", err)
	}
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(d.Width)
	}
	return out
}

// ---------------------------------------------------------------------------
// TestRenderer_RenderDeck - Ordered assembly
// ---------------------------------------------------------------------------

func TestRenderer_RenderDeck(t *testing.T) {
	t.Parallel()

	r := newDeckRenderer(t)
	res, err := r.RenderDeck(context.Background(), DeckJob{
		Slides: []Slide{
			{HTML: "500", Order: 3},
			{HTML: "300", Order: 1},
			{HTML: "400", Order: 2},
			{HTML: "450", Order: 2},
		},
		Metadata: DeckMetadata{Title: "Q3 Review", Author: "Platform", Subject: " "},
	})
	if err != nil {
		t.Fatalf("RenderDeck() error = %v", err)
	}

	if res.Slides != 4 || res.Pages != 4 || res.Format != FormatPDF {
		t.Errorf("RenderDeck() = %d slides, %d pages, %s; want 4, 4, pdf", res.Slides, res.Pages, res.Format)
	}
	got := pageWidths(t, res.Data)
	want := []int{300, 400, 450, 500}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("page widths = %v, want %v", got, want)
		}
	}

	info, err := api.PDFInfo(bytes.NewReader(res.Data), "deck.pdf", nil, false, pdfConfig())
	if err != nil {
		t.Fatalf("PDFInfo() error = %v", err)
	}
	if info.Title != "Q3 Review" || info.Author != "Platform" {
		t.Errorf("Title = %q Author = %q, want deck metadata", info.Title, info.Author)
	}
	if info.Subject != "" {
		t.Errorf("Subject = %q, want blank metadata skipped", info.Subject)
	}
}

func TestRenderer_RenderDeck_SingleSlide(t *testing.T) {
	t.Parallel()

	r := newDeckRenderer(t)
	res, err := r.RenderDeck(context.Background(), DeckJob{Slides: []Slide{{HTML: "320"}}})
	if err != nil {
		t.Fatalf("RenderDeck() error = %v", err)
	}
	if res.Pages != 1 || !bytes.Equal(res.Data, sizedPDF(1, 320)) {
		t.Errorf("RenderDeck() = %d pages, want the slide's own PDF untouched", res.Pages)
	}
}

func TestRenderer_RenderDeck_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		deck     DeckJob
		wantErr  error
		wantText string
	}{
		{
			name:    "no slides",
			deck:    DeckJob{},
			wantErr: ErrEmptyDeck,
		},
		{
			name:    "png deck",
			deck:    DeckJob{Slides: []Slide{{HTML: "300"}}, Job: RenderJob{Format: FormatPNG}},
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "unknown format",
			deck:    DeckJob{Slides: []Slide{{HTML: "300"}}, Job: RenderJob{Format: "pptx"}},
			wantErr: ErrInvalidFormat,
		},
		{
			name:     "blank slide",
			deck:     DeckJob{Slides: []Slide{{HTML: "300", Order: 1}, {HTML: " \n", Order: 7}}},
			wantErr:  ErrEmptyDocument,
			wantText: "slide 2 (order 7)",
		},
		{
			name: "blocked slide",
			deck: DeckJob{Slides: []Slide{
				{HTML: "300", Order: 1},
				{HTML: "<script>x()</script>", Order: 2},
				{HTML: "400", Order: 3},
			}},
			wantErr:  ErrComplianceViolation,
			wantText: "slide 2 (order 2)",
		},
	}

	r := newDeckRenderer(t, WithGate(&PolicyGate{}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := r.RenderDeck(context.Background(), tt.deck)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RenderDeck() error = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Error("RenderDeck() returned a result with an error")
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error = %q, want it to name %q", err, tt.wantText)
			}
		})
	}
}

func TestAssembleDeck_InvalidPart(t *testing.T) {
	t.Parallel()

	_, err := assembleDeck([][]byte{minimalPDF(1), []byte("not a pdf")}, DeckMetadata{})
	if !errors.Is(err, ErrDeckAssembly) {
		t.Errorf("assembleDeck() error = %v, want ErrDeckAssembly", err)
	}
}
