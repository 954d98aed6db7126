package source

// FileID indexes a File inside its FileSet.
type FileID uint32

// FileFlags records where content came from and how it was normalised.
type FileFlags uint8

const (
	// FileVirtual marks an overlay buffer or test input that is not on disk.
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileNormalizedCRLF
)

// File is one loaded document. Content is normalised (no BOM, LF line
// ends), and every offset in a Span refers to it.
type File struct {
	ID      FileID
	Path    string // slash-separated
	Content []byte
	LineIdx []uint32 // offsets of '\n'
	Flags   FileFlags
}

// LineCol is a 1-based line and byte column.
type LineCol struct {
	Line uint32
	Col  uint32
}
