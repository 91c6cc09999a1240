package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type LoaderOptions struct {
	HasHeader bool
	Separator rune
	// Encoding is a WHATWG label such as "utf-8" or "gbk".
	Encoding string
}

func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{HasHeader: true, Separator: ',', Encoding: "utf-8"}
}

// Loader reads delimited text into a Table according to an explicit schema.
// No schema inference is performed.
type Loader struct {
	opts   LoaderOptions
	logger *zap.Logger
}

func NewLoader(opts LoaderOptions, logger *zap.Logger) *Loader {
	if opts.Separator == 0 {
		opts.Separator = ','
	}
	if opts.Encoding == "" {
		opts.Encoding = "utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{opts: opts, logger: logger}
}

func (l *Loader) LoadFile(path string, schema Schema) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	table, err := l.Load(file, schema)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	l.logger.Info("loaded table",
		zap.String("path", path),
		zap.Int("rows", table.Rows()),
		zap.Strings("columns", table.Names()))
	return table, nil
}

func (l *Loader) Load(r io.Reader, schema Schema) (*Table, error) {
	if len(schema) == 0 {
		return nil, errors.New("empty schema")
	}
	enc, err := htmlindex.Get(l.opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", l.opts.Encoding, err)
	}
	decoded := transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.Comma = l.opts.Separator
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	maxIndex := 0
	for _, spec := range schema {
		if spec.Type != Text && spec.Type != Float32 {
			return nil, fmt.Errorf("column %q: type %s cannot be loaded from text", spec.Name, spec.Type)
		}
		if spec.Index < 0 {
			return nil, fmt.Errorf("column %q: negative source index", spec.Name)
		}
		if spec.Index > maxIndex {
			maxIndex = spec.Index
		}
	}

	texts := make([][]string, len(schema))
	floats := make([][]float32, len(schema))

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		if line == 1 && l.opts.HasHeader {
			continue
		}
		if len(record) <= maxIndex {
			return nil, fmt.Errorf("line %d: want at least %d fields, got %d", line, maxIndex+1, len(record))
		}
		for i, spec := range schema {
			field := strings.TrimSpace(record[spec.Index])
			switch spec.Type {
			case Text:
				texts[i] = append(texts[i], field)
			case Float32:
				v, err := strconv.ParseFloat(field, 32)
				if err != nil {
					return nil, fmt.Errorf("line %d column %q: %w", line, spec.Name, err)
				}
				floats[i] = append(floats[i], float32(v))
			}
		}
	}

	rows := line
	if l.opts.HasHeader && rows > 0 {
		rows--
	}
	if rows == 0 {
		return nil, errors.New("no data rows")
	}

	table := NewTable(rows)
	for i, spec := range schema {
		var col *Column
		if spec.Type == Text {
			col = NewTextColumn(spec.Name, texts[i])
		} else {
			col = NewFloat32Column(spec.Name, floats[i])
		}
		if err := table.Add(col); err != nil {
			return nil, err
		}
	}
	return table, nil
}
