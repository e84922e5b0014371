// Builds the per-persona reference corpora from the Cornell movie-dialogs
// corpus. One-shot offline preparation: it joins the raw metadata files
// into dialogue rows, partitions them by conversational style, and writes
// the CSV files the server loads at startup.
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const fieldSeparator = " +++$+++ "

type movieLine struct {
	charName string
	movieID  string
	text     string
}

func main() {
	var (
		corpusDir = flag.String("corpus", filepath.Join("data", "cornell movie-dialogs corpus"), "directory holding the raw Cornell corpus files")
		outDir    = flag.String("out", "data", "directory to write the generated CSV files")
	)
	flag.Parse()

	lines, err := loadLines(filepath.Join(*corpusDir, "movie_lines.txt"))
	if err != nil {
		log.Fatalf("load movie lines: %v", err)
	}

	titles, err := loadTitles(filepath.Join(*corpusDir, "movie_titles_metadata.txt"))
	if err != nil {
		log.Fatalf("load movie titles: %v", err)
	}

	pairs, err := loadConversationPairs(filepath.Join(*corpusDir, "movie_conversations.txt"))
	if err != nil {
		log.Fatalf("load conversations: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	full, err := newCSVWriter(filepath.Join(*outDir, "full_dialogues.csv"),
		[]string{"char1_name", "line1_text", "char2_name", "line2_text", "movie_title"})
	if err != nil {
		log.Fatalf("open full dialogues output: %v", err)
	}

	personaWriters := make([]*csvWriter, 3)
	for id := range personaWriters {
		writer, err := newCSVWriter(filepath.Join(*outDir, fmt.Sprintf("persona_%d_data.csv", id)),
			[]string{"char1_name", "line1_text", "movie_title"})
		if err != nil {
			log.Fatalf("open persona %d output: %v", id, err)
		}
		personaWriters[id] = writer
	}

	var rows, skipped int
	for _, pair := range pairs {
		first, ok1 := lines[pair[0]]
		second, ok2 := lines[pair[1]]
		if !ok1 || !ok2 || first.text == "" || second.text == "" {
			skipped++
			continue
		}

		title := titles[first.movieID]
		if title == "" {
			title = "Unknown"
		}

		full.write([]string{first.charName, first.text, second.charName, second.text, title})
		personaWriters[personaFor(first.text)].write([]string{first.charName, first.text, title})
		rows++
	}

	if err := full.close(); err != nil {
		log.Fatalf("flush full dialogues: %v", err)
	}
	for id, writer := range personaWriters {
		if err := writer.close(); err != nil {
			log.Fatalf("flush persona %d corpus: %v", id, err)
		}
		log.Printf("persona %d corpus: %d rows", id, writer.rows)
	}

	log.Printf("corpus build complete: %d dialogue rows, %d skipped", rows, skipped)
}

// personaFor assigns a dialogue line to the roster member whose style it
// resembles: probing questions to the analyst, short reactive lines to
// the responder, long expressive lines to the storyteller.
func personaFor(text string) int {
	trimmed := strings.TrimSpace(text)
	length := utf8.RuneCountInString(trimmed)

	switch {
	case strings.Contains(trimmed, "?") && length >= 20:
		return 0
	case length < 40:
		return 1
	case length >= 120:
		return 2
	default:
		return 0
	}
}

func loadLines(path string) (map[string]movieLine, error) {
	records, err := readSeparatedFile(path)
	if err != nil {
		return nil, err
	}

	lines := make(map[string]movieLine, len(records))
	for _, fields := range records {
		if len(fields) < 5 {
			continue
		}
		lines[strings.TrimSpace(fields[0])] = movieLine{
			charName: strings.TrimSpace(fields[3]),
			movieID:  strings.TrimSpace(fields[2]),
			text:     strings.TrimSpace(fields[4]),
		}
	}

	return lines, nil
}

func loadTitles(path string) (map[string]string, error) {
	records, err := readSeparatedFile(path)
	if err != nil {
		return nil, err
	}

	titles := make(map[string]string, len(records))
	for _, fields := range records {
		if len(fields) < 2 {
			continue
		}
		titles[strings.TrimSpace(fields[0])] = strings.TrimSpace(fields[1])
	}

	return titles, nil
}

// loadConversationPairs expands each conversation's ordered line-ID list
// into consecutive (line, reply) pairs.
func loadConversationPairs(path string) ([][2]string, error) {
	records, err := readSeparatedFile(path)
	if err != nil {
		return nil, err
	}

	var pairs [][2]string
	for _, fields := range records {
		if len(fields) < 4 {
			continue
		}
		ids := parseLineIDList(fields[3])
		for i := 0; i+1 < len(ids); i++ {
			pairs = append(pairs, [2]string{ids[i], ids[i+1]})
		}
	}

	return pairs, nil
}

// parseLineIDList parses the corpus's python-style list literal, e.g.
// ['L194', 'L195', 'L196'].
func parseLineIDList(raw string) []string {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		id := strings.Trim(strings.TrimSpace(part), "'\"")
		if id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

// readSeparatedFile reads a " +++$+++ "-separated latin-1 file into
// records of fields.
func readSeparatedFile(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records [][]string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := latin1ToUTF8(scanner.Bytes())
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, strings.Split(line, fieldSeparator))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	return records, nil
}

// latin1ToUTF8 maps each ISO-8859-1 byte to its rune.
func latin1ToUTF8(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
	rows   int
}

func newCSVWriter(path string, header []string) (*csvWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		_ = file.Close()
		return nil, err
	}

	return &csvWriter{file: file, writer: writer}, nil
}

func (w *csvWriter) write(record []string) {
	_ = w.writer.Write(record)
	w.rows++
}

func (w *csvWriter) close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
