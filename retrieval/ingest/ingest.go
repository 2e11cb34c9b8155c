// Package ingest extracts plain text from source documents (PDF, web
// pages) and chunks it for indexing, the same extraction libraries
// C360Studio-semspec's PDF parser and nevindra-oasis's HTTP fetch tool use.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// Chunker splits extracted text into fixed-size, word-boundary-respecting
// chunks for embedding. size is an approximate character budget per chunk.
type Chunker struct {
	Size    int
	Overlap int
}

// DefaultChunker matches the window most single-pass embedding models
// handle comfortably without truncation.
func DefaultChunker() Chunker {
	return Chunker{Size: 1200, Overlap: 200}
}

// Chunk splits text into overlapping windows, breaking on whitespace so no
// chunk starts or ends mid-word.
func (c Chunker) Chunk(text string) []string {
	if c.Size <= 0 {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	var overlapWords []string

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(cur.String()))
		cur.Reset()
	}

	for _, w := range overlapWords {
		cur.WriteString(w)
		cur.WriteString(" ")
	}

	for _, w := range words {
		if cur.Len()+len(w)+1 > c.Size && cur.Len() > 0 {
			flush()
			overlapWords = lastWords(strings.Fields(chunks[len(chunks)-1]), c.Overlap)
			for _, ow := range overlapWords {
				cur.WriteString(ow)
				cur.WriteString(" ")
			}
		}
		cur.WriteString(w)
		cur.WriteString(" ")
	}
	flush()
	return chunks
}

func lastWords(words []string, approxChars int) []string {
	if approxChars <= 0 {
		return nil
	}
	total := 0
	start := len(words)
	for start > 0 && total < approxChars {
		start--
		total += len(words[start]) + 1
	}
	return words[start:]
}

// Chunk is one piece of extracted document text ready for indexing.
type Chunk struct {
	ID      string
	Index   int
	Content string
}

// ChunkText chunks text and assigns each piece a stable ID derived from
// documentID and its position.
func ChunkText(documentID, text string, chunker Chunker) []Chunk {
	pieces := chunker.Chunk(text)
	out := make([]Chunk, len(pieces))
	for i, p := range pieces {
		out[i] = Chunk{ID: fmt.Sprintf("%s:%d", documentID, i), Index: i, Content: p}
	}
	return out
}

// ExtractPDF extracts plain text from PDF bytes, page by page, the same
// io.ReaderAt-over-bytes approach C360Studio-semspec's PDFParser uses since
// the pdf package needs random access rather than a streaming reader.
func ExtractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(newBytesReaderAt(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf: %w", err)
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if pageText != "" {
			if text.Len() > 0 {
				text.WriteString("\n\n")
			}
			text.WriteString(pageText)
		}
	}
	return text.String(), nil
}

// ExtractWebPage fetches rawURL and extracts its readable text content via
// go-readability, falling back to the raw body when extraction fails.
func ExtractWebPage(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("ingest: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; WorkflowIngestBot/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ingest: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ingest: http %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("ingest: read body: %w", err)
	}

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}
	return string(body), nil
}

type bytesReaderAt struct {
	data []byte
}

func newBytesReaderAt(data []byte) *bytesReaderAt {
	return &bytesReaderAt{data: data}
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("ingest: negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
