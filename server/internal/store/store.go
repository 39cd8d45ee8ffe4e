package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/evoapps/datastore/pkg/types"
)

var (
	// ErrNotFound is returned by Read when no file exists at the path.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidPath is returned when a path is absolute or escapes the root.
	ErrInvalidPath = errors.New("invalid document path")

	// ErrInvalidDocument wraps UTF-8 and JSON syntax failures.
	ErrInvalidDocument = errors.New("invalid JSON document")

	errIsDirectory = errors.New("path names a directory")
)

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
	indent               = "  "
)

// Store reads and writes JSON documents below root.
type Store struct {
	root string
	now  func() time.Time // injectable for deterministic tests

	mu        sync.RWMutex
	listeners []func(types.ChangeEvent)
}

// Open returns a Store rooted at root, creating the directory if needed.
func Open(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("store: resolve root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("store: create root %q: %w", abs, err)
	}
	return &Store{root: abs, now: time.Now}, nil
}

// Root returns the absolute data root.
func (s *Store) Root() string { return s.root }

// Subscribe registers fn to be called after every successful Write.
// fn runs on the writer's goroutine and must not block.
func (s *Store) Subscribe(fn func(types.ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Resolve maps a document path to an absolute filesystem path inside the root.
// The empty path resolves to the root itself.
func (s *Store) Resolve(rel string) (string, error) {
	if rel == "" {
		return s.root, nil
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(s.root, local), nil
}

// Read returns the document at rel as compact JSON.
//
// A path whose file, or any parent, does not exist yields ErrNotFound. A path
// naming a directory, a file that is not valid JSON, and any other I/O
// failure are returned as errors.
func (s *Store) Read(rel string) ([]byte, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}

	// "dir/" only exists as a directory; a file reached that way does not.
	if rel == "" || strings.HasSuffix(rel, "/") {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.IsDir():
			return nil, fmt.Errorf("store: read %q: %w", rel, errIsDirectory)
		case err == nil || isMissing(err):
			return nil, fmt.Errorf("store: read %q: %w", rel, ErrNotFound)
		default:
			return nil, fmt.Errorf("store: read %q: %w", rel, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("store: read %q: %w", rel, ErrNotFound)
		}
		return nil, fmt.Errorf("store: read %q: %w", rel, err)
	}

	doc, err := compact(raw)
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", rel, err)
	}
	return doc, nil
}

// Write validates body as a UTF-8 JSON document and stores it at rel,
// replacing any previous content. It returns the number of bytes written.
//
// The file is truncated and rewritten in place; it is not replaced atomically.
func (s *Store) Write(rel string, body []byte) (int, error) {
	if rel == "" || strings.HasSuffix(rel, "/") {
		return 0, fmt.Errorf("store: write %q: %w", rel, errIsDirectory)
	}
	path, err := s.Resolve(rel)
	if err != nil {
		return 0, err
	}

	doc, err := pretty(body)
	if err != nil {
		return 0, fmt.Errorf("store: write %q: %w", rel, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return 0, fmt.Errorf("store: write %q: %w", rel, err)
	}
	if err := os.WriteFile(path, doc, filePerm); err != nil {
		return 0, fmt.Errorf("store: write %q: %w", rel, err)
	}

	s.emit(types.ChangeEvent{
		Op:   types.OpWrite,
		Path: filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel))),
		Size: len(doc),
		At:   s.now().UTC(),
	})
	return len(doc), nil
}

// Seed writes each document in docs whose file does not exist yet and
// returns how many were written. Existing documents are left untouched.
// Paths are processed in sorted order; the first failure stops seeding.
func (s *Store) Seed(docs map[string]any) (int, error) {
	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	written := 0
	for _, rel := range paths {
		path, err := s.Resolve(rel)
		if err != nil {
			return written, fmt.Errorf("store: seed: %w", err)
		}
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !isMissing(err) {
			return written, fmt.Errorf("store: seed %q: %w", rel, err)
		}

		body, err := marshal(docs[rel])
		if err != nil {
			return written, fmt.Errorf("store: seed %q: %w", rel, err)
		}
		if _, err := s.Write(rel, body); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// Check reports whether the data root is present and is a directory.
func (s *Store) Check() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store: data root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store: data root %q is not a directory", s.root)
	}
	return nil
}

func (s *Store) emit(ev types.ChangeEvent) {
	s.mu.RLock()
	listeners := make([]func(types.ChangeEvent), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// isMissing treats a missing parent directory and a parent that is a regular
// file the same as a missing document.
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// pretty re-serialises body with a two-space indent. Key order and number
// literals are preserved; non-ASCII text is written as literal UTF-8.
func pretty(body []byte) ([]byte, error) {
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid UTF-8", ErrInvalidDocument)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", indent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return unescapeNonASCII(bytes.TrimRight(buf.Bytes(), " \t\r\n")), nil
}

// unescapeNonASCII rewrites \uXXXX escapes inside JSON strings as literal
// UTF-8 when they encode a code point >= 0x80. Surrogate pairs are merged.
// Escapes for ASCII, control characters and lone surrogates are kept.
// doc must be valid JSON.
func unescapeNonASCII(doc []byte) []byte {
	if !bytes.Contains(doc, []byte(`\u`)) {
		return doc
	}
	out := make([]byte, 0, len(doc))
	inString := false
	for i := 0; i < len(doc); i++ {
		c := doc[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			out = append(out, c)
			continue
		}
		switch c {
		case '"':
			inString = false
			out = append(out, c)
		case '\\':
			if doc[i+1] != 'u' {
				out = append(out, c, doc[i+1])
				i++
				continue
			}
			r, n, ok := decodeEscape(doc[i:])
			if !ok || r < utf8.RuneSelf {
				out = append(out, doc[i:i+n]...)
			} else {
				out = utf8.AppendRune(out, r)
			}
			i += n - 1
		default:
			out = append(out, c)
		}
	}
	return out
}

// decodeEscape decodes the \uXXXX escape at the start of b, consuming a
// following low surrogate when b starts with a high one. ok is false for a
// lone surrogate.
func decodeEscape(b []byte) (r rune, n int, ok bool) {
	r1 := hex4(b[2:6])
	if !utf16.IsSurrogate(r1) {
		return r1, 6, true
	}
	if len(b) >= 12 && b[6] == '\\' && b[7] == 'u' {
		if pair := utf16.DecodeRune(r1, hex4(b[8:12])); pair != utf8.RuneError {
			return pair, 12, true
		}
	}
	return 0, 6, false
}

func hex4(b []byte) rune {
	v, _ := strconv.ParseUint(string(b), 16, 32)
	return rune(v)
}

func compact(raw []byte) ([]byte, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: file is not valid UTF-8", ErrInvalidDocument)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return buf.Bytes(), nil
}

// marshal encodes a seed value without HTML escaping so "<" and "&" are kept
// literally, like every other written document.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
