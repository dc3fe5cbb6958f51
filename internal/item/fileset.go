package item

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
)

// FileSet is an item backed by one or more files or directories.
type FileSet struct {
	dt Datatype

	// base is the directory prefix stripped by TrimPaths; paths are relative to it when set.
	base  string
	paths []string
}

// NewFileSet creates a fileset of datatype dt over the given paths, checking
// the paths satisfy the datatype.
func NewFileSet(dt Datatype, paths ...string) (*FileSet, error) {
	if !dt.IsFileSet() {
		return nil, errs.New(errs.CodeDatatypeMismatch, "%s is not a fileset datatype", dt.Name)
	}
	ordered, err := matchPaths(dt, paths)
	if err != nil {
		return nil, err
	}
	return &FileSet{dt: dt, paths: ordered}, nil
}

// MustFileSet is like NewFileSet but panics on error.
func MustFileSet(dt Datatype, paths ...string) *FileSet {
	fs, err := NewFileSet(dt, paths...)
	if err != nil {
		panic(err)
	}
	return fs
}

// Datatype returns the fileset's datatype.
func (f *FileSet) Datatype() Datatype { return f.dt }

// IsFileSet returns true.
func (f *FileSet) IsFileSet() bool { return true }

// Paths returns the full paths of the fileset's members, primary first.
func (f *FileSet) Paths() []string {
	out := make([]string, len(f.paths))
	for i, p := range f.paths {
		out[i] = f.full(p)
	}
	return out
}

// Primary returns the full path of the primary member.
func (f *FileSet) Primary() string {
	return f.full(f.paths[0])
}

// Names returns the member paths as currently held: relative names after TrimPaths,
// otherwise base names.
func (f *FileSet) Names() []string {
	out := make([]string, len(f.paths))
	for i, p := range f.paths {
		if f.base != "" {
			out[i] = p
		} else {
			out[i] = filepath.Base(p)
		}
	}
	return out
}

func (f *FileSet) full(p string) string {
	if f.base == "" {
		return p
	}
	return filepath.Join(f.base, p)
}

// TrimPaths returns a copy whose member paths are relative to their deepest common
// directory, so only the meaningful file names remain. The copy still reads the same files.
func (f *FileSet) TrimPaths() *FileSet {
	full := f.Paths()
	base := commonDir(full)
	rel := make([]string, len(full))
	for i, p := range full {
		r, err := filepath.Rel(base, p)
		if err != nil {
			r = filepath.Base(p)
		}
		rel[i] = r
	}
	return &FileSet{dt: f.dt, base: base, paths: rel}
}

func commonDir(paths []string) string {
	dir := filepath.Dir(filepath.Clean(paths[0]))
	for _, p := range paths[1:] {
		d := filepath.Dir(filepath.Clean(p))
		for dir != d && !strings.HasPrefix(d, dir+string(filepath.Separator)) {
			parent := filepath.Dir(dir)
			if parent == dir {
				return dir
			}
			dir = parent
		}
	}
	return dir
}

// ContentHash is HashFiles.
func (f *FileSet) ContentHash() (string, error) { return f.HashFiles() }

// HashFiles computes a digest over every member's relative name and content.
// Members are sorted by name, so the hash is independent of member order and of the
// directory the fileset lives in; directories are walked recursively.
func (f *FileSet) HashFiles() (string, error) {
	type member struct {
		name string
		sum  [sha256.Size]byte
	}
	var members []member

	for _, p := range f.Paths() {
		root := filepath.Base(p)
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(p, path)
			if err != nil {
				return err
			}
			name := root
			if rel != "." {
				name = filepath.ToSlash(filepath.Join(root, rel))
			}
			sum, err := hashFile(path)
			if err != nil {
				return err
			}
			members = append(members, member{name: name, sum: sum})
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("hash files: %w", err)
		}
	}

	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })

	var buf bytes.Buffer
	for _, m := range members {
		writeField(&buf, []byte(m.name))
		writeField(&buf, m.sum[:])
	}
	return record.HashWithDomain(record.DomainFileSet, buf.Bytes()), nil
}

// writeField writes length-prefixed data so adjacent fields cannot be confused.
func writeField(buf *bytes.Buffer, data []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	buf.Write(n[:])
	buf.Write(data)
}

func hashFile(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	fh, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// CopyTo copies every member into dir, keeping member names, and returns the copy.
func (f *FileSet) CopyTo(dir string) (*FileSet, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("copy fileset: %w", err)
	}
	dest := make([]string, 0, len(f.paths))
	for _, src := range f.Paths() {
		target := filepath.Join(dir, filepath.Base(src))
		if err := copyTree(src, target); err != nil {
			return nil, fmt.Errorf("copy fileset: %w", err)
		}
		dest = append(dest, target)
	}
	return &FileSet{dt: f.dt, paths: dest}, nil
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return CopyFile(src, dst)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return CopyFile(path, target)
	})
}

// CopyFile copies a single regular file, creating parent directories.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// matchPaths checks paths against dt and returns them in datatype order (primary first).
func matchPaths(dt Datatype, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, errs.New(errs.CodeDatatypeMismatch, "%s requires at least one path", dt.Name)
	}

	switch {
	case dt.AnyFiles:
		return append([]string(nil), paths...), nil
	case dt.Directory:
		if len(paths) != 1 {
			return nil, mismatch(dt, paths, "expected a single directory")
		}
		if info, err := os.Stat(paths[0]); err != nil || !info.IsDir() {
			return nil, mismatch(dt, paths, "not a directory")
		}
		return []string{paths[0]}, nil
	case len(dt.Extensions) == 0:
		if len(paths) != 1 {
			return nil, mismatch(dt, paths, "expected a single file")
		}
		if info, err := os.Stat(paths[0]); err != nil || info.IsDir() {
			return nil, mismatch(dt, paths, "not a regular file")
		}
		return []string{paths[0]}, nil
	}

	if len(paths) != len(dt.Extensions) {
		return nil, mismatch(dt, paths, fmt.Sprintf("expected %d files", len(dt.Extensions)))
	}
	ordered := make([]string, len(dt.Extensions))
	for i, ext := range dt.Extensions {
		for _, p := range paths {
			_, pext := SplitExt(filepath.Base(p))
			if strings.EqualFold(pext, ext) {
				ordered[i] = p
				break
			}
		}
		if ordered[i] == "" {
			return nil, mismatch(dt, paths, "missing "+ext+" file")
		}
	}
	return ordered, nil
}

func mismatch(dt Datatype, paths []string, reason string) error {
	return errs.New(errs.CodeDatatypeMismatch, "%v cannot be read as %s: %s", paths, dt.Name, reason)
}
