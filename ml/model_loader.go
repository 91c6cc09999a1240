package ml

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	manifestEntryName = "Manifest.json"
	formatVersion     = 1
)

type manifest struct {
	FormatVersion int               `json:"format_version"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Transformers  []manifestEntry   `json:"transformers"`
}

type manifestEntry struct {
	Kind  string `json:"kind"`
	Entry string `json:"entry"`
}

// Save writes the chain as a zip archive: a manifest plus one JSON entry per
// transformer. Entries carry no timestamps, so equal chains produce equal
// bytes.
func (c *TransformerChain) Save(w io.Writer) error {
	zw := zip.NewWriter(w)
	m := manifest{FormatVersion: formatVersion, Metadata: c.metadata}
	for i, tr := range c.transformers {
		name := fmt.Sprintf("Transformers/%02d_%s.json", i, tr.Kind())
		if err := writeJSONEntry(zw, name, tr); err != nil {
			return err
		}
		m.Transformers = append(m.Transformers, manifestEntry{Kind: tr.Kind(), Entry: name})
	}
	if err := writeJSONEntry(zw, manifestEntryName, m); err != nil {
		return err
	}
	return zw.Close()
}

func writeJSONEntry(zw *zip.Writer, name string, v interface{}) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// SaveFile writes m to path, creating parent directories and replacing any
// existing file. A failed save removes the file.
func SaveFile(m Model, path string) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	return m.Save(file)
}

func LoadFile(path string) (Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	model, err := Load(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return model, nil
}

func Load(r io.ReaderAt, size int64) (Model, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	var m manifest
	if err := readJSONEntry(entries, manifestEntryName, &m); err != nil {
		return nil, err
	}
	if m.FormatVersion != formatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", m.FormatVersion)
	}
	if len(m.Transformers) == 0 {
		return nil, errors.New("model has no transformers")
	}

	transformers := make([]Transformer, 0, len(m.Transformers))
	for _, e := range m.Transformers {
		tr, err := decodeTransformer(entries, e)
		if err != nil {
			return nil, err
		}
		transformers = append(transformers, tr)
	}
	return NewTransformerChain(transformers...).WithMetadata(m.Metadata), nil
}

func decodeTransformer(entries map[string]*zip.File, e manifestEntry) (Transformer, error) {
	switch e.Kind {
	case KindCopyColumns:
		var t ColumnCopier
		if err := readJSONEntry(entries, e.Entry, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case KindOneHotEncoding:
		var t OneHotEncoder
		if err := readJSONEntry(entries, e.Entry, &t); err != nil {
			return nil, err
		}
		if len(t.Vocabulary) == 0 {
			return nil, fmt.Errorf("%s: empty vocabulary", e.Entry)
		}
		return &t, nil
	case KindConcatenate:
		var t ColumnConcatenator
		if err := readJSONEntry(entries, e.Entry, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case KindBoostedTreeRegression:
		var t BoostedTreePredictor
		if err := readJSONEntry(entries, e.Entry, &t); err != nil {
			return nil, err
		}
		if err := t.Ensemble.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Entry, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("unknown transformer kind %q", e.Kind)
	}
}

func readJSONEntry(entries map[string]*zip.File, name string, v interface{}) error {
	f, ok := entries[name]
	if !ok {
		return fmt.Errorf("archive entry %s missing", name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
