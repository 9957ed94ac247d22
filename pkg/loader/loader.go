package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/primojavier/pdfrag/internal/models"
)

type LoaderConfig struct {
	RootDir           string
	AllowedExtensions []string
	IgnorePatterns    []string
	OnProgress        func(path string) // progress callback per loaded file
}

// Loader walks a documents folder, reads raw file bytes and extracts plain
// text from each supported format.
type Loader struct {
	config LoaderConfig
}

func NewWithConfig(config LoaderConfig) (*Loader, error) {
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".pdf", ".txt", ".md", ".html"}
	}

	if config.RootDir != "" {
		info, err := os.Stat(config.RootDir)
		if err != nil {
			return nil, fmt.Errorf("documents folder %s: %w", config.RootDir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("documents folder %s is not a directory", config.RootDir)
		}
	}

	return &Loader{config: config}, nil
}

func New(rootDir string) (*Loader, error) {
	return NewWithConfig(LoaderConfig{RootDir: rootDir})
}

func (l *Loader) shouldProcessPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	validExt := false
	for _, allowedExt := range l.config.AllowedExtensions {
		if ext == allowedExt {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range l.config.IgnorePatterns {
		if strings.Contains(path, pattern) {
			return false
		}
	}

	return true
}

// Load reads every matching file under the root folder, recursively, in
// lexical walk order. An unreadable or unparseable file fails the whole load;
// there is no per-file recovery.
func (l *Loader) Load() ([]models.Document, error) {
	var documents []models.Document

	err := filepath.WalkDir(l.config.RootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !l.shouldProcessPath(path) {
			return nil
		}

		doc, err := l.loadFile(path)
		if err != nil {
			return err
		}

		documents = append(documents, doc)

		if l.config.OnProgress != nil {
			l.config.OnProgress(path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return documents, nil
}

func (l *Loader) loadFile(path string) (models.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	content, err := l.ExtractText(raw, filepath.Ext(path))
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to extract text from %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.Document{}, err
	}

	return models.Document{
		ID:      uuid.NewString(),
		Name:    filepath.Base(path),
		Path:    path,
		Raw:     raw,
		Content: content,
		Metadata: map[string]interface{}{
			"length":            info.Size(),
			"modification_time": info.ModTime(),
		},
	}, nil
}

// ExtractText converts raw document bytes into plain text based on the file
// extension. Unknown extensions are treated as plain text.
func (l *Loader) ExtractText(raw []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDFText(raw)
	case ".html", ".htm":
		return extractHTMLText(raw)
	default:
		return string(raw), nil
	}
}
