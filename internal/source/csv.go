package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/record-overlap/internal/config"
)

// CSVReader reads a delimited text file whose first record is the header.
type CSVReader struct {
	name    string
	file    *os.File
	reader  *csv.Reader
	columns []string
}

// OpenCSV opens a delimited file, decoding it from cfg.Encoding.
func OpenCSV(cfg config.Source) (*CSVReader, error) {
	decoder, err := decoderFor(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}
	comma, err := delimiter(cfg.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}

	file, err := os.Open(cfg.Path)
	if err != nil {
		return nil, &NotFoundError{Name: cfg.Name, Location: cfg.Path, Err: err}
	}

	reader := csv.NewReader(transform.NewReader(file, decoder))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		file.Close()
		return nil, fmt.Errorf("source %s: %s is empty", cfg.Name, cfg.Path)
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("source %s: failed to read header: %w", cfg.Name, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	return &CSVReader{name: cfg.Name, file: file, reader: reader, columns: columns}, nil
}

func (r *CSVReader) Name() string      { return r.name }
func (r *CSVReader) Columns() []string { return r.columns }

func (r *CSVReader) Next() ([]any, error) {
	record, err := r.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("source %s: %w", r.name, err)
	}
	return textRow(record, len(r.columns)), nil
}

func (r *CSVReader) Close() error {
	return r.file.Close()
}

// decoderFor maps an encoding name to a decoder. UTF-8 input has any
// byte order mark stripped.
func decoderFor(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "utf-16", "utf16":
		return unicode.BOMOverride(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder(), nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder(), nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

func delimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}
