// Package report renders the users and reviews tables into a plaintext file.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"mobility/m/domain"
	"mobility/m/internal/metrics"
	"mobility/m/internal/store"
)

// PasswordMask replaces password hashes in the report.
const PasswordMask = "********"

const (
	banner = "==================================================================================\n"
	title  = "                             MOBILITY ASSISTANCE DATABASE                         \n"
)

var rule = strings.Repeat("-", 80) + "\n"

type Exporter struct {
	users   store.UserRepository
	reviews store.ReviewRepository
	path    string
	metrics *metrics.Metrics
}

func NewExporter(users store.UserRepository, reviews store.ReviewRepository, path string, m *metrics.Metrics) *Exporter {
	return &Exporter{users: users, reviews: reviews, path: path, metrics: m}
}

// Path is the file the report is written to.
func (e *Exporter) Path() string { return e.path }

// Export reads both tables and replaces the report file.
func (e *Exporter) Export(ctx context.Context) error {
	users, err := e.users.List(ctx)
	if err != nil {
		return err
	}
	reviews, err := e.reviews.List(ctx)
	if err != nil {
		return err
	}

	// Reviews are listed newest first; the report reads oldest first.
	ordered := make([]domain.Review, len(reviews))
	for i, r := range reviews {
		ordered[len(reviews)-1-i] = r
	}

	var buf bytes.Buffer
	Render(&buf, users, ordered)
	return writeFile(e.path, buf.Bytes())
}

// Refresh runs Export and logs any failure instead of returning it.
func (e *Exporter) Refresh(ctx context.Context) {
	err := e.Export(ctx)
	e.metrics.ObserveExport(err)
	if err != nil {
		logrus.WithError(err).WithField("path", e.path).Error("error exporting data")
	}
}

// Render writes the fixed-width report for users and reviews to w.
func Render(w io.Writer, users []domain.User, reviews []domain.Review) {
	fmt.Fprint(w, banner, title, banner, "\n")

	fmt.Fprint(w, "REGISTERED USERS\n")
	fmt.Fprintf(w, "%-5s | %-20s | %-15s | %s\n", "ID", "USERNAME", "PASSWORD", "EMAIL")
	fmt.Fprint(w, rule)
	if len(users) == 0 {
		fmt.Fprint(w, "(No users found)\n")
	}
	for _, u := range users {
		mask := ""
		if u.Password != "" {
			mask = PasswordMask
		}
		fmt.Fprintf(w, "%-5s | %-20s | %-15s | %s\n", strconv.FormatInt(u.ID, 10), u.Username, mask, u.EmailOrEmpty())
	}
	fmt.Fprint(w, rule, "\n")

	fmt.Fprint(w, "USER REVIEWS\n")
	fmt.Fprintf(w, "%-5s | %-20s | %s\n", "ID", "USERNAME", "MESSAGE")
	fmt.Fprint(w, rule)
	if len(reviews) == 0 {
		fmt.Fprint(w, "(No reviews found)\n")
	}
	for _, r := range reviews {
		msg := strings.ReplaceAll(r.Message, "\n", " ")
		fmt.Fprintf(w, "%-5s | %-20s | %s\n", strconv.FormatInt(r.ID, 10), r.Author(), msg)
	}
	fmt.Fprint(w, rule)
}

// writeFile replaces path via a temp file in the same directory so readers
// never see a half-written report.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}
