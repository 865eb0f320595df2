package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

const separator = "---"

type state int

const (
	seeking state = iota
	readingHeader
	readingBody
)

// ParseFile reads the care guides in the file at path.
func ParseFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse extracts care guides from r. Each guide is a YAML header between
// two "---" lines followed by free-text notes; the next "---" starts the
// following guide. Text before the first header is ignored. A guide with
// a bad header is skipped and reported; the rest are still returned.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var (
		entries      []Entry
		errs         []error
		current      Entry
		header       []string
		body         []string
		headerLine   int
		lineNo       int
		currentBad   bool
		currentState = seeking
	)

	finishEntry := func() {
		current.Notes = strings.TrimSpace(strings.Join(body, "\n"))
		if !currentBad && strings.TrimSpace(current.Name) != "" {
			current.Name = strings.TrimSpace(current.Name)
			current.ScientificName = strings.TrimSpace(current.ScientificName)
			entries = append(entries, current)
		}
		current = Entry{}
		header, body = nil, nil
		currentBad = false
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimRight(line, " \t") != separator {
			switch currentState {
			case readingHeader:
				header = append(header, line)
			case readingBody:
				body = append(body, line)
			}
			continue
		}

		switch currentState {
		case seeking:
			currentState = readingHeader
			headerLine = lineNo
		case readingHeader:
			if err := yaml.Unmarshal([]byte(strings.Join(header, "\n")), &current); err != nil {
				errs = append(errs, fmt.Errorf("guide at line %d: %w", headerLine, err))
				currentBad = true
			}
			currentState = readingBody
		case readingBody:
			finishEntry()
			currentState = readingHeader
			headerLine = lineNo
		}
	}

	switch currentState {
	case readingHeader:
		if strings.TrimSpace(strings.Join(header, "")) != "" {
			errs = append(errs, fmt.Errorf("guide at line %d: unterminated header", headerLine))
		}
	case readingBody:
		finishEntry()
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, errors.Join(errs...)
}
