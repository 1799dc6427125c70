// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package uploads stores marker photos on local disk under names of the form
// <unix-millis>-<original name>, served from a static URL prefix.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/models"
)

// sniffLen is how much of the upload mimetype inspects.
const sniffLen = 3072

// allowedTypes are the accepted photo formats.
var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic", "image/avif"}

// Stored describes a saved upload.
type Stored struct {
	// Path is the file location on disk.
	Path string

	// URL is the server-relative path clients fetch, e.g. /uploads/1700000000000-cafe.jpg.
	URL string

	Size        int64
	ContentType string
}

// Store writes uploads into Dir.
type Store struct {
	dir       string
	urlPrefix string
	maxBytes  int64
	now       func() time.Time
}

// New creates the upload directory if needed.
func New(dir, urlPrefix string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		maxBytes:  maxBytes,
		now:       time.Now,
	}, nil
}

// Dir returns the directory served at URLPrefix.
func (s *Store) Dir() string {
	return s.dir
}

// URLPrefix returns the public path prefix, e.g. /uploads.
func (s *Store) URLPrefix() string {
	return s.urlPrefix
}

// SanitizeName reduces a client-supplied file name to a safe base name made
// of ASCII letters, digits, '.', '-' and '_', so the stored name can be used
// as a URL path segment without escaping.
func SanitizeName(name string) string {
	// Browsers on Windows may send full paths.
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == '/', r == ':':
			return -1
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "photo"
	}
	if len(name) > 128 {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:128-len(ext)] + ext
	}
	return name
}

// Save writes r to <dir>/<millis>-<name>. Non-image content and files over
// the size limit return a *models.ValidationError and leave nothing behind.
func (s *Store) Save(ctx context.Context, originalName string, r io.Reader) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return Stored{}, models.NewValidationError("photo", "required", "photo is empty")
	}

	mtype := mimetype.Detect(head)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return Stored{}, models.NewValidationError("photo", "image", "photo must be an image, got "+mtype.String())
	}

	name := strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + SanitizeName(originalName)
	dst := filepath.Join(s.dir, name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Stored{}, fmt.Errorf("create upload: %w", err)
	}

	// Read one byte past the limit to detect oversize files.
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.maxBytes+1)
	written, err := io.Copy(f, body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxBytes {
		err = models.NewValidationError("photo", "max", fmt.Sprintf("photo must be at most %d bytes", s.maxBytes))
	}
	if err != nil {
		_ = os.Remove(dst)
		if models.IsValidation(err) {
			return Stored{}, err
		}
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}

	return Stored{
		Path:        dst,
		URL:         s.urlPrefix + "/" + name,
		Size:        written,
		ContentType: mtype.String(),
	}, nil
}

// Remove deletes a previously saved upload. Missing files are not an error.
func (s *Store) Remove(stored Stored) error {
	if stored.Path == "" {
		return nil
	}
	if err := os.Remove(stored.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", stored.Path).Msg("Failed to remove upload")
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
