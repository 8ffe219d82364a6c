package export

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/five82/metricdeck/internal/api"
)

const (
	extension          = ".xlsx"
	consolidatedSuffix = "consolidado"
	maxDuplicates      = 1000
)

// Filename picks the name for an export of q. A filename carried by the
// Content-Disposition header wins; otherwise it is <card>_<period>.xlsx, with
// "consolidado" standing in for the all-time period.
func Filename(q api.CardQuery, disposition string) string {
	if name := dispositionFilename(disposition); name != "" {
		return name
	}
	suffix := consolidatedSuffix
	if !q.Period.IsConsolidated() && q.Period != "" {
		suffix = string(q.Period)
	}
	return sanitize(q.Card) + "_" + sanitize(suffix) + extension
}

func dispositionFilename(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	var name string
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	} else {
		name = looseFilename(header)
	}
	return baseName(name)
}

// looseFilename handles headers ParseMediaType rejects, such as unquoted
// names containing spaces.
func looseFilename(header string) string {
	lower := strings.ToLower(header)
	idx := strings.Index(lower, "filename=")
	if idx < 0 {
		return ""
	}
	value := header[idx+len("filename="):]
	if end := strings.Index(value, ";"); end >= 0 {
		value = value[:end]
	}
	return strings.Trim(strings.TrimSpace(value), `"'`)
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(filepath.Base(filepath.FromSlash(name)))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return ""
	}
	return name
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}

// FileSaver writes exports into a directory and never overwrites an existing
// file: a clash saves as "name (1).xlsx", "name (2).xlsx" and so on.
type FileSaver struct {
	Dir string
}

// NewFileSaver returns a FileSaver rooted at dir.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir}
}

// Save implements Saver.
func (s *FileSaver) Save(filename string, data []byte) (string, error) {
	if s.Dir == "" {
		return "", fmt.Errorf("download directory not configured")
	}
	name := baseName(filename)
	if name == "" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxDuplicates; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(s.Dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", candidate, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("too many files named %s in %s", name, s.Dir)
}
