package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"jobbot/internal/extract"
)

var ErrMissingDocument = errors.New("document not found")

// Paths locates the applicant's files on disk.
type Paths struct {
	Resume      string
	CoverLetter string
}

// Bundle is what an automator needs to fill an application.
type Bundle struct {
	ResumePath  string
	ResumeText  string
	CoverLetter string
	Profile     Profile
}

// Profile holds the contact fields pasted into application forms.
type Profile struct {
	Phone       string
	Website     string
	LinkedInURL string
}

// DocumentError names the file that could not be used.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Load reads the resume and cover letter. An empty path leaves that part of the bundle empty.
func Load(ctx context.Context, paths Paths, profile Profile) (Bundle, error) {
	b := Bundle{ResumePath: paths.Resume, Profile: profile}
	if p := strings.TrimSpace(paths.Resume); p != "" {
		text, err := readDocument(ctx, p)
		if err != nil {
			return Bundle{}, err
		}
		b.ResumeText = text
	}
	if p := strings.TrimSpace(paths.CoverLetter); p != "" {
		text, err := readDocument(ctx, p)
		if err != nil {
			return Bundle{}, err
		}
		b.CoverLetter = text
	}
	return b, nil
}

func readDocument(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &DocumentError{Path: path, Err: ErrMissingDocument}
		}
		return "", &DocumentError{Path: path, Err: err}
	}
	text, err := extract.FromFile(ctx, path)
	if err != nil {
		return "", &DocumentError{Path: path, Err: err}
	}
	return text, nil
}

// CoverExcerpt returns at most limit runes of the cover letter.
func (b Bundle) CoverExcerpt(limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(b.CoverLetter)
	if len(r) <= limit {
		return b.CoverLetter
	}
	return string(r[:limit])
}
