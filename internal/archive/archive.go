// Package archive bundles a session output directory into a single
// zstd compressed tar file.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

// ManifestName is the first entry of every bundle.
const ManifestName = "manifest.json"

// Extension is appended by callers that name bundles after a session.
const Extension = ".tar.zst"

type Entry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

type Manifest struct {
	CreatedAt time.Time       `json:"createdAt"`
	Result    json.RawMessage `json:"result,omitempty"`
	Files     []Entry         `json:"files"`
}

// Decode returns the result collection stored in the manifest.
func (m *Manifest) Decode() (result.Data, error) {
	if len(m.Result) == 0 {
		return nil, nil
	}
	return result.Decode(m.Result)
}

type options struct {
	level int
}

type Option func(*options)

// WithLevel sets the zstd compression level (1-22).
func WithLevel(level int) Option {
	return func(o *options) { o.level = level }
}

// Bundle writes every regular file below dir into dst. Hidden files are
// skipped. res, when not nil, is stored in the manifest.
func Bundle(dir, dst string, res result.Data, opts ...Option) (*Manifest, error) {
	o := options{level: 3}
	for _, opt := range opts {
		opt(&o)
	}

	manifest := &Manifest{CreatedAt: time.Now().UTC(), Files: []Entry{}}
	if res != nil {
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		manifest.Result = raw
	}

	absDst, _ := filepath.Abs(dst)
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(p); abs == absDst {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	for _, p := range files {
		entry, err := describe(dir, p)
		if err != nil {
			return nil, err
		}
		manifest.Files = append(manifest.Files, entry)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp, files, manifest, o); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("rename archive: %w", err)
	}
	return manifest, nil
}

func describe(dir, p string) (Entry, error) {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return Entry{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return Entry{}, fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Entry{}, fmt.Errorf("hash %s: %w", rel, err)
	}
	return Entry{Path: filepath.ToSlash(rel), Size: n, SHA256: fmt.Sprintf("%x", h.Sum(nil))}, nil
}

func write(w io.Writer, files []string, manifest *Manifest, o options) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(o.level)))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		zw.Close()
		return fmt.Errorf("marshal manifest: %w", err)
	}
	hdr := &tar.Header{
		Name:    ManifestName,
		Mode:    0o644,
		Size:    int64(len(manifestJSON)),
		ModTime: manifest.CreatedAt,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		zw.Close()
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		zw.Close()
		return fmt.Errorf("write manifest: %w", err)
	}

	for i, p := range files {
		if err := addFile(tw, p, manifest.Files[i]); err != nil {
			zw.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, p string, entry Entry) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    entry.Path,
		Mode:    0o644,
		Size:    entry.Size,
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", entry.Path, err)
	}
	if _, err := io.CopyN(tw, f, entry.Size); err != nil {
		return fmt.Errorf("write %s: %w", entry.Path, err)
	}
	return nil
}

// Extract unpacks src into dir and returns its manifest.
func Extract(src, dir string) (*Manifest, error) {
	return read(src, func(name string, r io.Reader) error {
		target, err := safeJoin(dir, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return fmt.Errorf("extract %s: %w", name, err)
		}
		return out.Close()
	})
}

// ReadManifest returns the manifest without unpacking any file.
func ReadManifest(src string) (*Manifest, error) {
	return read(src, nil)
}

func read(src string, each func(name string, r io.Reader) error) (*Manifest, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)

	var manifest *Manifest
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Name == ManifestName && manifest == nil {
			manifest = &Manifest{}
			if err := json.NewDecoder(tr).Decode(manifest); err != nil {
				return nil, fmt.Errorf("decode manifest: %w", err)
			}
			if each == nil {
				return manifest, nil
			}
			continue
		}
		if each == nil {
			continue
		}
		if err := each(hdr.Name, tr); err != nil {
			return nil, err
		}
	}
	if manifest == nil {
		return nil, fmt.Errorf("archive %s has no %s", src, ManifestName)
	}
	return manifest, nil
}

func safeJoin(dir, name string) (string, error) {
	clean := path.Clean("/" + name)
	if clean == "/" || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid archive entry %q", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean[1:])), nil
}
