// Package knowledge loads a persona's reference corpus and answers
// relevance lookups against it. The corpus is read once at startup and
// never mutated afterwards, so concurrent lookups are safe.
package knowledge

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

// NoKnowledgeMarker is returned in place of excerpts when a persona has
// no corpus to draw from. It must never turn into a citation.
const NoKnowledgeMarker = "No specific knowledge available for this persona."

// Entry is one dialogue line from the reference corpus.
type Entry struct {
	Character string
	Line      string
	Movie     string
}

// Format renders the entry the way persona prompts expect it.
func (e Entry) Format() string {
	return fmt.Sprintf("Character: %s - %q (Movie: %s)", e.Character, e.Line, e.Movie)
}

// Corpus is an immutable, in-memory reference table for one persona.
type Corpus struct {
	entries []Entry
}

// column aliases accepted in corpus CSV headers
var (
	characterColumns = []string{"char1_name", "character_name", "char_name"}
	lineColumns      = []string{"line1_text", "line_text", "text"}
	movieColumns     = []string{"movie_title", "movie"}
)

// Load reads a persona corpus CSV. A missing file yields an empty corpus
// and no error: absent knowledge degrades, it does not abort startup.
func Load(path string) (*Corpus, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Corpus{}, nil
		}
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer file.Close()

	return Read(file)
}

// Read parses corpus CSV rows from r.
func Read(r io.Reader) (*Corpus, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return &Corpus{}, nil
		}
		return nil, fmt.Errorf("read corpus header: %w", err)
	}

	charIdx := columnIndex(header, characterColumns)
	lineIdx := columnIndex(header, lineColumns)
	movieIdx := columnIndex(header, movieColumns)
	if lineIdx < 0 {
		return nil, fmt.Errorf("corpus header missing line text column: %v", header)
	}

	var entries []Entry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read corpus row: %w", err)
		}

		line := strings.TrimSpace(field(record, lineIdx))
		if line == "" {
			continue
		}

		entries = append(entries, Entry{
			Character: orUnknown(field(record, charIdx)),
			Line:      line,
			Movie:     orUnknown(field(record, movieIdx)),
		})
	}

	return &Corpus{entries: entries}, nil
}

// Len reports the number of corpus entries.
func (c *Corpus) Len() int {
	return len(c.entries)
}

// Empty reports whether the corpus holds no entries.
func (c *Corpus) Empty() bool {
	return len(c.entries) == 0
}

// Relevant returns up to max entries whose text contains any
// whitespace-delimited token of the lowercased query, in corpus order.
// When nothing matches it falls back to a uniform random sample; matched
// reports whether the entries came from an actual keyword match.
func (c *Corpus) Relevant(query string, max int) (entries []Entry, matched bool) {
	if c.Empty() || max <= 0 {
		return nil, false
	}

	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) > 0 {
		for _, entry := range c.entries {
			text := strings.ToLower(entry.Line)
			for _, token := range tokens {
				if strings.Contains(text, token) {
					entries = append(entries, entry)
					break
				}
			}
			if len(entries) >= max {
				break
			}
		}
	}

	if len(entries) > 0 {
		return entries, true
	}

	return c.Sample(max), false
}

// Sample draws up to max entries uniformly at random without replacement.
func (c *Corpus) Sample(max int) []Entry {
	if c.Empty() || max <= 0 {
		return nil
	}
	if max > len(c.entries) {
		max = len(c.entries)
	}

	picked := make([]Entry, 0, max)
	for _, idx := range rand.Perm(len(c.entries))[:max] {
		picked = append(picked, c.entries[idx])
	}

	return picked
}

// RenderBlock joins formatted entries into the prompt block, or returns
// the no-knowledge marker when there is nothing to render.
func RenderBlock(entries []Entry) string {
	if len(entries) == 0 {
		return NoKnowledgeMarker
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Format())
	}

	return strings.Join(lines, "\n")
}

func columnIndex(header []string, names []string) int {
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		for _, name := range names {
			if col == name {
				return i
			}
		}
	}
	return -1
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func orUnknown(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Unknown"
	}
	return value
}
