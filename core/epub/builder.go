// Package epub assembles normalized sections into an EPUB package with
// metadata, an ordered spine, and a table of contents that mirrors the
// recipe's section structure.
package epub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goepub "github.com/bmaupin/go-epub"
	"github.com/gosimple/slug"

	"github.com/claudehenchoz/gensi/core"
)

// Metadata is the document-level publication metadata.
type Metadata struct {
	Title    string
	Author   string
	Language string
}

// Assemble builds the EPUB file in outputDir and returns its path. With a
// single section the table of contents is flat; multiple sections become
// top-level entries with their articles nested beneath. The file appears
// atomically: a partial build never replaces an existing output.
func Assemble(meta Metadata, cover *core.Asset, sections []core.Section, outputDir string) (string, error) {
	book := goepub.NewEpub(meta.Title)
	book.SetAuthor(meta.Author)
	book.SetLang(meta.Language)

	tmpDir, err := os.MkdirTemp("", "gensi-epub-")
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if cover != nil {
		internal, err := addAsset(book, tmpDir, *cover, map[string]bool{})
		if err != nil {
			return "", fmt.Errorf("adding cover image: %w", err)
		}
		book.SetCover(internal, "")
	}

	if err := addSections(book, tmpDir, sections); err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, slug.Make(meta.Title)+".epub")
	staging := filepath.Join(tmpDir, "out.epub")
	if err := book.Write(staging); err != nil {
		return "", fmt.Errorf("writing epub: %w", err)
	}
	if err := os.Rename(staging, outputPath); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		data, readErr := os.ReadFile(staging)
		if readErr != nil {
			return "", fmt.Errorf("moving epub into place: %w", err)
		}
		if writeErr := os.WriteFile(outputPath, data, 0o644); writeErr != nil {
			return "", fmt.Errorf("moving epub into place: %w", writeErr)
		}
	}
	return outputPath, nil
}

func addSections(book *goepub.Epub, tmpDir string, sections []core.Section) error {
	added := map[string]bool{}
	// A single unnamed source produces a flat book; a declared name always
	// becomes a TOC section, even alone.
	flat := len(sections) == 1 && sections[0].Name == ""
	chapter := 0

	for si, section := range sections {
		parent := ""
		if !flat {
			body := fmt.Sprintf("<h1>%s</h1>", escape(section.Name))
			filename := fmt.Sprintf("section_%03d.xhtml", si)
			var err error
			parent, err = book.AddSection(body, section.Name, filename, "")
			if err != nil {
				return fmt.Errorf("adding section %q: %w", section.Name, err)
			}
		}

		for _, article := range section.Articles {
			for _, asset := range article.Assets {
				if _, err := addAsset(book, tmpDir, asset, added); err != nil {
					return fmt.Errorf("adding image %s: %w", asset.Filename, err)
				}
			}

			chapter++
			filename := fmt.Sprintf("chapter_%03d.xhtml", chapter)
			body := articleBody(article)
			var err error
			if flat {
				_, err = book.AddSection(body, article.Title, filename, "")
			} else {
				_, err = book.AddSubSection(parent, body, article.Title, filename, "")
			}
			if err != nil {
				return fmt.Errorf("adding chapter %q: %w", article.Title, err)
			}
		}
	}
	return nil
}

// addAsset stages the image bytes on disk and registers them with the book.
// The returned internal path matches the "../images/" references the
// normalizer wrote into article bodies.
func addAsset(book *goepub.Epub, tmpDir string, asset core.Asset, added map[string]bool) (string, error) {
	internal := "../images/" + asset.Filename
	if added[asset.Filename] {
		return internal, nil
	}
	staged := filepath.Join(tmpDir, asset.Filename)
	if err := os.WriteFile(staged, asset.Data, 0o644); err != nil {
		return "", err
	}
	internal, err := book.AddImage(staged, asset.Filename)
	if err != nil {
		return "", err
	}
	added[asset.Filename] = true
	return internal, nil
}

// articleBody renders the chapter markup: a heading, an optional byline,
// then the normalized content.
func articleBody(article core.Article) string {
	var b strings.Builder
	b.WriteString("<h1>")
	b.WriteString(escape(article.Title))
	b.WriteString("</h1>\n")

	byline := bylineText(article)
	if byline != "" {
		b.WriteString(`<p class="byline">`)
		b.WriteString(escape(byline))
		b.WriteString("</p>\n")
	}
	b.WriteString(article.Body)
	return b.String()
}

func bylineText(article core.Article) string {
	switch {
	case article.Author != "" && article.Date != "":
		return article.Author + " · " + article.Date
	case article.Author != "":
		return article.Author
	default:
		return article.Date
	}
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return escaper.Replace(s)
}
