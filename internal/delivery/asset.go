package delivery

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/mwhitfield/foliochat/internal/actions"
)

// ResumeAssets verifies and serves the resume PDF from disk. Verification
// opens the file with a PDF reader so a truncated or swapped file is caught
// before the send, not after.
type ResumeAssets struct {
	path string
}

// NewResumeAssets points the fetcher at the resume PDF.
func NewResumeAssets(path string) *ResumeAssets {
	return &ResumeAssets{path: path}
}

// Fetch checks the resume file is present and a readable PDF.
func (a *ResumeAssets) Fetch(ctx context.Context) (actions.ResumeAsset, error) {
	if _, err := os.Stat(a.path); err != nil {
		return actions.ResumeAsset{}, fmt.Errorf("locating resume file: %w", err)
	}

	f, r, err := pdf.Open(a.path)
	if err != nil {
		return actions.ResumeAsset{}, fmt.Errorf("opening resume pdf: %w", err)
	}
	defer f.Close()

	pages := r.NumPage()
	if pages == 0 {
		return actions.ResumeAsset{}, fmt.Errorf("resume pdf %s has no pages", a.path)
	}

	return actions.ResumeAsset{Path: a.path, Pages: pages}, nil
}
