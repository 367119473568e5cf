// Package extract turns local files into context variables for a run.
// Plain text passes through; PDF and HTML are reduced to their text.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/rlmlab/rlmtrace/internal/recorder"
)

// FromFile reads path and returns it as a named run input. The variable name
// defaults to the file's base name without extension; pass name to override.
func FromFile(path, name string) (recorder.Input, error) {
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	var (
		value string
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		value, err = pdfText(path)
	case ".html", ".htm":
		value, err = htmlText(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		value = string(data)
	}
	if err != nil {
		return recorder.Input{}, fmt.Errorf("extracting %s: %w", path, err)
	}

	return recorder.Input{Name: name, Value: value}, nil
}

// FromFiles reads several files into one variable, each prefixed with a file
// header so the recorder's n_files summary reflects the real count. Files
// are extracted concurrently (PDF text extraction is slow) but concatenated
// in argument order.
func FromFiles(paths []string, name string) (recorder.Input, error) {
	if name == "" {
		name = "files"
	}

	values := make([]string, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(4)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			in, err := FromFile(p, "_")
			if err != nil {
				return err
			}
			values[i] = in.Value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return recorder.Input{}, err
	}

	var b strings.Builder
	for i, p := range paths {
		fmt.Fprintf(&b, "=== File: %s ===\n%s\n", filepath.Base(p), values[i])
	}
	return recorder.Input{Name: name, Value: b.String()}, nil
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

func htmlText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}
