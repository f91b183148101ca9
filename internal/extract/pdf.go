package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// pdftotextBin is the poppler binary used for PDF text extraction.
const pdftotextBin = "pdftotext"

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler (brew install poppler / apt install poppler-utils)")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDFReader extracts text from PDF files with pdftotext.
type PDFReader struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewPDFReader creates a PDFReader. A nil runner executes the real binary.
func NewPDFReader(runner CommandRunner) *PDFReader {
	if runner == nil {
		return &PDFReader{runner: execRunner{}, lookPath: exec.LookPath}
	}
	// Injected runners stand in for the binary, so no PATH lookup.
	return &PDFReader{runner: runner, lookPath: func(string) (string, error) { return pdftotextBin, nil }}
}

// CheckAvailable reports whether pdftotext is on PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath(pdftotextBin); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// Read returns the text layer of the PDF at path.
func (r *PDFReader) Read(ctx context.Context, path string) (string, error) {
	bin, err := r.lookPath(pdftotextBin)
	if err != nil {
		return "", ErrPDFToolNotFound
	}

	out, err := r.runner.Run(ctx, bin, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("pdftotext timed out for %s: %w", path, ctx.Err())
		}
		return "", fmt.Errorf("pdftotext failed for %s: %w", path, err)
	}

	// pdftotext separates pages with form feeds.
	return strings.ReplaceAll(decodeText(out), "\f", "\n"), nil
}
