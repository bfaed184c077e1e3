package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/craftsman/internal/models"
)

type ProcessorConfig struct {
	ChunkSize          int // in characters
	ChunkOverlap       int
	MinChunkLength     int
	Lowercase          bool
	RemoveStopwords    bool
	CustomStopwords    []string
	PreserveLineBreaks bool
}

type Processor struct {
	config    ProcessorConfig
	splitter  textsplitter.RecursiveCharacter
	stopwords map[string]struct{}
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 100
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 20
	}

	stopwords := make(map[string]struct{})
	for _, w := range append(getStopwords(), config.CustomStopwords...) {
		stopwords[w] = struct{}{}
	}

	return Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", "؟ ", "? ", "! ", "، ", " ", ""}),
		),
		stopwords: stopwords,
	}
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// Process cleans every page and splits it into overlapping chunks. Chunks
// shorter than MinChunkLength are dropped.
func (p *Processor) Process(pages []models.Page) ([]models.ProcessedPage, error) {
	processed := make([]models.ProcessedPage, 0, len(pages))

	for _, page := range pages {
		chunks, err := p.Split(page.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", page.URL, err)
		}
		processed = append(processed, models.ProcessedPage{
			Page:   page,
			Chunks: chunks,
		})
	}

	return processed, nil
}

// Split cleans a single text and chunks it.
func (p *Processor) Split(text string) ([]string, error) {
	clean := p.cleanText(text)
	if clean == "" {
		return nil, nil
	}

	parts, err := p.splitter.SplitText(clean)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) >= p.config.MinChunkLength {
			chunks = append(chunks, part)
		}
	}
	return chunks, nil
}

func (p *Processor) cleanText(text string) string {
	if p.config.Lowercase {
		text = strings.ToLower(text)
	}

	if p.config.PreserveLineBreaks {
		lines := strings.Split(text, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if line = p.cleanLine(line); line != "" {
				kept = append(kept, line)
			}
		}
		return strings.Join(kept, "\n")
	}

	return p.cleanLine(text)
}

func (p *Processor) cleanLine(text string) string {
	words := strings.Fields(text)
	if p.config.RemoveStopwords {
		words = p.removeStopwords(words)
	}
	return strings.Join(words, " ")
}

func (p *Processor) removeStopwords(words []string) []string {
	filtered := words[:0]
	for _, word := range words {
		if _, ok := p.stopwords[strings.ToLower(word)]; !ok {
			filtered = append(filtered, word)
		}
	}
	return filtered
}

// Common English and Arabic stopwords
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
		"في", "من", "على", "إلى", "عن", "مع", "هذا", "هذه", "التي", "الذي",
	}
}
