package receipt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const maxLineBytes = 1 << 20

// decoderFor returns the decoder for a configured text encoding name.
func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8.NewDecoder(), nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported text encoding %q", name)
	}
}

// ReadLines decodes r and splits it into lines, dropping line terminators and
// the form feeds pdftotext emits at page breaks.
func ReadLines(r io.Reader, textEncoding string) ([]string, error) {
	dec, err := decoderFor(textEncoding)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(transform.NewReader(r, dec))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lines = append(lines, strings.ReplaceAll(line, "\f", ""))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read receipt text: %w", err)
	}
	return lines, nil
}

// ReadFile reads the receipt text file at path.
func ReadFile(path, textEncoding string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadLines(f, textEncoding)
}
