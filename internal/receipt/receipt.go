// Package receipt shows and exports the proof a prediction was made: a QR
// code of its verification URL, the author, the time and the content hash.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/callingitnow/callit/internal/model"
)

// PNGSize is the edge length of exported QR images in pixels.
const PNGSize = 256

// TimeLayout matches the receipt dialog, e.g. "March 1, 2024 at 12:30:45 PM UTC".
const TimeLayout = "January 2, 2006 at 3:04:05 PM MST"

var ErrHashMismatch = errors.New("hash does not match prediction content")

type Fetcher interface {
	GetReceipt(ctx context.Context, id int64) (model.Receipt, error)
}

// Fetch loads the receipt of prediction id.
func Fetch(ctx context.Context, api Fetcher, id int64) (model.Receipt, error) {
	r, err := api.GetReceipt(ctx, id)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("fetch receipt %d: %w", id, err)
	}
	return r, nil
}

type Options struct {
	// Location for the timestamp; nil means local time.
	Location *time.Location
	// NoQR skips the terminal QR code.
	NoQR bool
}

// Render writes r as a plain-text receipt.
func Render(w io.Writer, r model.Receipt, opts Options) error {
	var b strings.Builder
	b.WriteString("Prediction Receipt\n\n")
	b.WriteString(r.Title)
	b.WriteString("\n\n")
	if !opts.NoQR {
		q, err := qrcode.New(r.VerificationURL, qrcode.Low)
		if err != nil {
			return fmt.Errorf("encode qr: %w", err)
		}
		b.WriteString(q.ToSmallString(false))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Timestamp: %s\n", FormatTime(r.Timestamp, opts.Location))
	fmt.Fprintf(&b, "User: @%s\n", r.UserHandle)
	fmt.Fprintf(&b, "Hash (SHA-256): %s\n", r.Hash)
	fmt.Fprintf(&b, "Verify: %s\n", r.VerificationURL)
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatTime renders ts in loc using TimeLayout. Raw timestamps without an
// offset are UTC.
func FormatTime(ts model.Timestamp, loc *time.Location) string {
	if ts.IsZero() {
		return ts.Raw
	}
	if loc == nil {
		loc = time.Local
	}
	return ts.In(loc).Format(TimeLayout)
}

// WritePNG writes a QR image of r's verification URL into dir and returns
// its path.
func WritePNG(dir string, r model.Receipt) (string, error) {
	if r.VerificationURL == "" {
		return "", errors.New("receipt has no verification url")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(r.Title))
	if err := qrcode.WriteFile(r.VerificationURL, qrcode.Low, PNGSize, path); err != nil {
		return "", fmt.Errorf("write qr png: %w", err)
	}
	return path, nil
}

var (
	spaces   = regexp.MustCompile(`\s+`)
	nonWord  = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)
	dashRuns = regexp.MustCompile(`--+`)
)

// Slug lowercases title, joins words with dashes and drops everything else.
func Slug(title string) string {
	s := strings.ToLower(title)
	s = spaces.ReplaceAllString(s, "-")
	s = nonWord.ReplaceAllString(s, "")
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// FileName is the export name for a receipt of title.
func FileName(title string) string {
	slug := Slug(title)
	if slug == "" {
		slug = "prediction"
	}
	return slug + "-receipt.png"
}

// Verify recomputes p's hash from its author, title, content and the raw
// timestamp the server hashed.
func Verify(p model.Prediction) error {
	if p.Hash == "" {
		return errors.New("prediction has no hash")
	}
	if !model.VerifyHash(p) {
		return ErrHashMismatch
	}
	return nil
}
