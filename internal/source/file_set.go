package source

import (
	"fmt"
	"os"
	"path/filepath"

	"fortio.org/safecast"
)

// FileSet owns the files of one compile pass. Every include gets its own
// FileID, even when a path repeats. Mutation is single-threaded; reads
// after the pass are safe from any goroutine.
type FileSet struct {
	files   []*File
	baseDir string
}

// NewFileSet creates a FileSet that reports paths against the working directory.
func NewFileSet() *FileSet {
	return NewFileSetWithBase("")
}

// NewFileSetWithBase creates a FileSet that reports paths against baseDir.
func NewFileSetWithBase(baseDir string) *FileSet {
	return &FileSet{baseDir: baseDir}
}

// BaseDir returns the directory relative paths are reported against.
func (fs *FileSet) BaseDir() string {
	if fs.baseDir != "" {
		return fs.baseDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

// Len returns the number of files added so far.
func (fs *FileSet) Len() int {
	return len(fs.files)
}

// Add stores already normalised content under path and returns its id.
func (fs *FileSet) Add(path string, content []byte, flags FileFlags) FileID {
	n, err := safecast.Conv[uint32](len(fs.files))
	if err != nil {
		panic(fmt.Errorf("file set overflow: %w", err))
	}
	id := FileID(n)
	fs.files = append(fs.files, &File{
		ID:      id,
		Path:    normalizePath(path),
		Content: content,
		LineIdx: buildLineIndex(content),
		Flags:   flags,
	})
	return id
}

// Load reads path from disk and adds it with BOM and CRLF normalisation.
func (fs *FileSet) Load(path string) (FileID, error) {
	// #nosec G304 -- documents are named by the user
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return fs.addNormalized(path, content, 0), nil
}

// AddVirtual adds an in-memory buffer, normalised like Load.
func (fs *FileSet) AddVirtual(name string, content []byte) FileID {
	return fs.addNormalized(name, content, FileVirtual)
}

func (fs *FileSet) addNormalized(path string, content []byte, flags FileFlags) FileID {
	var trimmed, converted bool
	content, trimmed = removeBOM(content)
	content, converted = normalizeCRLF(content)
	if trimmed {
		flags |= FileHadBOM
	}
	if converted {
		flags |= FileNormalizedCRLF
	}
	return fs.Add(path, content, flags)
}

// Get returns the file for id. Unknown ids panic like an out-of-range index.
func (fs *FileSet) Get(id FileID) *File {
	return fs.files[id]
}

// Resolve converts both ends of span into line/column positions.
func (fs *FileSet) Resolve(span Span) (start, end LineCol) {
	idx := fs.files[span.File].LineIdx
	return toLineCol(idx, span.Start), toLineCol(idx, span.End)
}

// Text returns the bytes covered by span, clamped to the file.
func (fs *FileSet) Text(span Span) string {
	if int(span.File) >= len(fs.files) {
		return ""
	}
	content := fs.files[span.File].Content
	end := min(int(span.End), len(content))
	start := min(int(span.Start), end)
	return string(content[start:end])
}

// LineBounds returns the byte range of 1-based line n without its newline.
func (f *File) LineBounds(n uint32) (start, end uint32, ok bool) {
	lines := len(f.LineIdx) + 1
	if n == 0 || int64(n) > int64(lines) {
		return 0, 0, false
	}
	if n > 1 {
		start = f.LineIdx[n-2] + 1
	}
	if int(n-1) < len(f.LineIdx) {
		end = f.LineIdx[n-1]
	} else {
		size, err := safecast.Conv[uint32](len(f.Content))
		if err != nil {
			panic(fmt.Errorf("file too large: %w", err))
		}
		end = size
	}
	return start, end, true
}

// GetLine returns 1-based line n without its newline, or "" when missing.
func (f *File) GetLine(n uint32) string {
	start, end, ok := f.LineBounds(n)
	if !ok {
		return ""
	}
	return string(f.Content[start:end])
}

// FormatPath formats the path for display. Modes are "absolute",
// "relative", "basename" and "auto" (basename for long absolute paths).
func (f *File) FormatPath(mode, baseDir string) string {
	switch mode {
	case "absolute":
		if abs, err := AbsolutePath(f.Path); err == nil {
			return abs
		}
	case "relative":
		if baseDir == "" {
			baseDir, _ = os.Getwd()
		}
		if rel, err := RelativePath(f.Path, baseDir); err == nil {
			return rel
		}
	case "basename":
		return BaseName(f.Path)
	case "auto":
		if len(f.Path) >= 40 && filepath.IsAbs(filepath.FromSlash(f.Path)) {
			return BaseName(f.Path)
		}
	}
	return f.Path
}
