// Package dataset implements the preprocessing stages upstream of graph
// construction: text sources, vocabulary building, and sentence-graph
// extraction. The expensive stages are cacheable; repeated runs over
// unchanged inputs load from the content-addressed store.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextSource is an ordered collection of (sentence, label) rows. String
// must return a stable identity that changes when the underlying data
// changes source, since it participates in downstream cache keys.
type TextSource interface {
	Len() int
	Row(i int) (text, label string)
	String() string
}

// CSVTextSource reads every row of a CSV file up front, selecting one text
// and one label column by header name.
type CSVTextSource struct {
	name string
	rows [][2]string
}

// NewCSVTextSource fails when either column is missing from the header or
// appears more than once.
func NewCSVTextSource(path, textCol, labelCol string) (*CSVTextSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header of %s: %w", path, err)
	}

	textIdx, err := columnIndex(header, textCol, path)
	if err != nil {
		return nil, err
	}
	labelIdx, err := columnIndex(header, labelCol, path)
	if err != nil {
		return nil, err
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	rows := make([][2]string, len(records))
	for i, record := range records {
		rows[i] = [2]string{record[textIdx], record[labelIdx]}
	}

	return &CSVTextSource{name: filepath.Base(path), rows: rows}, nil
}

func columnIndex(header []string, col, path string) (int, error) {
	idx := -1
	for i, h := range header {
		if h != col {
			continue
		}
		if idx >= 0 {
			return 0, fmt.Errorf("dataset: column %q appears more than once in %s", col, path)
		}
		idx = i
	}
	if idx < 0 {
		return 0, fmt.Errorf("dataset: column %q not found in %s", col, path)
	}
	return idx, nil
}

func (s *CSVTextSource) Len() int {
	return len(s.rows)
}

func (s *CSVTextSource) Row(i int) (string, string) {
	return s.rows[i][0], s.rows[i][1]
}

func (s *CSVTextSource) String() string {
	return "csv_" + s.name
}

// SliceTextSource serves rows from memory, mainly for tests and fixtures.
type SliceTextSource struct {
	Name string
	Rows [][2]string
}

func (s *SliceTextSource) Len() int {
	return len(s.Rows)
}

func (s *SliceTextSource) Row(i int) (string, string) {
	return s.Rows[i][0], s.Rows[i][1]
}

func (s *SliceTextSource) String() string {
	return "slice_" + s.Name
}

// Tokenizer splits a sentence into tokens whose positions align with the
// node ids the sentence-to-graph stage produces.
type Tokenizer interface {
	Tokenize(sentence string) []string
	String() string
}

// WhitespaceTokenizer splits on runs of whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(sentence string) []string {
	return strings.Fields(sentence)
}

func (WhitespaceTokenizer) String() string {
	return "whitespace"
}
