// Package pipeline orchestrates a recipe run end to end: cover resolution,
// index extraction, bounded-parallel article processing, and package
// assembly. Single article failures are recorded and skipped; index source
// failures drop that source's section; only cancellation or a fully empty
// result abort the build.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/claudehenchoz/gensi/core"
	"github.com/claudehenchoz/gensi/core/datefmt"
	"github.com/claudehenchoz/gensi/core/epub"
	"github.com/claudehenchoz/gensi/core/extract"
	"github.com/claudehenchoz/gensi/core/normalize"
	"github.com/claudehenchoz/gensi/core/recipe"
	"github.com/claudehenchoz/gensi/core/script"
	"github.com/claudehenchoz/gensi/core/urlutil"
	"github.com/claudehenchoz/gensi/internal/logger"
)

const defaultParallelism = 5

// ErrNoArticles aborts a build in which every article failed.
var ErrNoArticles = errors.New("no articles could be extracted")

// Options configures a Pipeline.
type Options struct {
	Fetcher       core.Fetcher
	OutputDir     string
	Parallelism   int
	ScriptTimeout time.Duration
	Log           *logger.Logger
}

// SkippedItem records one article left out of the package.
type SkippedItem struct {
	URL    string
	Reason string
}

// Result summarizes a completed run.
type Result struct {
	OutputPath string
	Articles   int
	Skipped    []SkippedItem
}

// Pipeline runs recipes. One Pipeline may run several recipes in sequence;
// its fetcher and its cache are shared across runs.
type Pipeline struct {
	fetcher   core.Fetcher
	norm      *normalize.Normalizer
	eng       *script.Engine
	log       *logger.Logger
	outputDir string
	parallel  int
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Log == nil {
		opts.Log = logger.New("info")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Pipeline{
		fetcher:   opts.Fetcher,
		norm:      normalize.New(opts.Fetcher, opts.Log),
		eng:       script.New(opts.ScriptTimeout),
		log:       opts.Log,
		outputDir: opts.OutputDir,
		parallel:  opts.Parallelism,
	}
}

// Job is a recipe run in flight.
type Job struct {
	events chan Event
	done   chan struct{}
	result *Result
	err    error
}

// Events streams every progress event in order until the run finishes and
// the channel closes. The stream is lossless: once the buffer fills the run
// waits for the consumer, so callers must drain it (or cancel the context).
func (j *Job) Events() <-chan Event { return j.events }

// Wait blocks until the run finishes.
func (j *Job) Wait() (*Result, error) {
	<-j.done
	return j.result, j.err
}

// Submit starts a recipe run and returns immediately.
func (p *Pipeline) Submit(ctx context.Context, rec *recipe.Recipe) *Job {
	job := &Job{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(job.done)
		defer close(job.events)
		job.result, job.err = p.run(ctx, rec, job)
	}()
	return job
}

func (j *Job) emit(ctx context.Context, e Event) {
	select {
	case j.events <- e:
	case <-ctx.Done():
	}
}

func (p *Pipeline) run(ctx context.Context, rec *recipe.Recipe, job *Job) (*Result, error) {
	cover := p.resolveCover(ctx, rec, job)

	var (
		sections []core.Section
		skipped  []SkippedItem
		total    int
	)

	for i := range rec.Indices {
		src := &rec.Indices[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		section, sectionSkipped, err := p.runSource(ctx, rec, src, job)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Warn("skipping index source", "source", src.Name, "error", err)
			job.emit(ctx, Event{Phase: PhaseIndex, Item: src.URL, Status: StatusFailed, Err: err})
			skipped = append(skipped, SkippedItem{URL: src.URL, Reason: err.Error()})
			continue
		}

		skipped = append(skipped, sectionSkipped...)
		if len(section.Articles) == 0 {
			continue
		}
		total += len(section.Articles)
		sections = append(sections, *section)
	}

	if total == 0 {
		return nil, ErrNoArticles
	}

	path, err := epub.Assemble(epub.Metadata{
		Title:    rec.Title,
		Author:   rec.Author,
		Language: rec.Language,
	}, cover, sections, p.outputDir)
	if err != nil {
		job.emit(ctx, Event{Phase: PhaseAssemble, Item: rec.Title, Status: StatusFailed, Err: err})
		return nil, err
	}
	job.emit(ctx, Event{Phase: PhaseAssemble, Item: path, Status: StatusDone})

	return &Result{OutputPath: path, Articles: total, Skipped: skipped}, nil
}

// resolveCover fetches the cover image. Covers are decorative; any failure
// degrades to a coverless package with a warning.
func (p *Pipeline) resolveCover(ctx context.Context, rec *recipe.Recipe, job *Job) *core.Asset {
	if rec.Cover == nil {
		return nil
	}
	job.emit(ctx, Event{Phase: PhaseCover, Item: rec.Cover.URL, Status: StatusFetching})

	imageURL := rec.Cover.URL
	if !urlutil.IsImageURL(imageURL) {
		doc, err := p.fetcher.Fetch(ctx, rec.Cover.URL, core.FetchCover)
		if err != nil {
			p.coverFailed(ctx, job, rec.Cover.URL, err)
			return nil
		}
		page, err := extract.ParseHTML(doc.Body, doc.FinalURL)
		if err != nil {
			p.coverFailed(ctx, job, rec.Cover.URL, err)
			return nil
		}
		imageURL, err = page.CoverURL(rec.Cover, p.eng)
		if err != nil || imageURL == "" {
			p.coverFailed(ctx, job, rec.Cover.URL, err)
			return nil
		}
	}

	img, err := p.fetcher.FetchBinary(ctx, imageURL, core.FetchCover)
	if err != nil {
		p.coverFailed(ctx, job, imageURL, err)
		return nil
	}

	asset := coverAsset(imageURL, img.Body)
	job.emit(ctx, Event{Phase: PhaseCover, Item: imageURL, Status: StatusDone})
	return &asset
}

func (p *Pipeline) coverFailed(ctx context.Context, job *Job, url string, err error) {
	if err == nil {
		err = errors.New("cover selector matched no image")
	}
	p.log.Warn("continuing without cover", "url", url, "error", err)
	job.emit(ctx, Event{Phase: PhaseCover, Item: url, Status: StatusFailed, Err: err})
}

// runSource extracts one index source into a section.
func (p *Pipeline) runSource(ctx context.Context, rec *recipe.Recipe, src *recipe.IndexSource, job *Job) (*core.Section, []SkippedItem, error) {
	job.emit(ctx, Event{Phase: PhaseIndex, Item: src.URL, Status: StatusFetching})

	refs, err := p.indexRefs(ctx, src)
	if err != nil {
		return nil, nil, err
	}

	// The limit truncates after ordering and transformation never reorders,
	// so it applies before article fetches are scheduled.
	if src.Limit > 0 && len(refs) > src.Limit {
		refs = refs[:src.Limit]
	}
	for i := range refs {
		refs[i].URL, err = extract.TransformURL(refs[i].URL, src.URLTransform, p.eng)
		if err != nil {
			return nil, nil, err
		}
	}
	job.emit(ctx, Event{Phase: PhaseIndex, Item: src.URL, Status: StatusDone})

	rule := rec.ArticleRuleFor(src)

	// Workers write into positional slots so the section preserves the
	// index's discovery order regardless of completion order.
	slots := make([]*core.Article, len(refs))
	var mu sync.Mutex
	var skipped []SkippedItem

	for _, ref := range refs {
		job.emit(ctx, Event{Phase: PhaseArticle, Item: ref.URL, Status: StatusQueued})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for i := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ref := refs[i]
			job.emit(gctx, Event{Phase: PhaseArticle, Item: ref.URL, Status: StatusFetching})

			article, err := p.processArticle(gctx, ref, rule, func(s Status) {
				job.emit(gctx, Event{Phase: PhaseArticle, Item: ref.URL, Status: s})
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.log.Warn("skipping article", "url", ref.URL, "error", err)
				job.emit(gctx, Event{Phase: PhaseArticle, Item: ref.URL, Status: StatusFailed, Err: err})
				mu.Lock()
				skipped = append(skipped, SkippedItem{URL: ref.URL, Reason: err.Error()})
				mu.Unlock()
				return nil
			}

			slots[i] = article
			job.emit(gctx, Event{Phase: PhaseArticle, Item: ref.URL, Status: StatusDone})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	section := &core.Section{Name: src.Name}
	for _, article := range slots {
		if article != nil {
			section.Articles = append(section.Articles, *article)
		}
	}
	return section, skipped, nil
}

// indexRefs fetches and extracts the source's article references.
func (p *Pipeline) indexRefs(ctx context.Context, src *recipe.IndexSource) ([]core.ArticleRef, error) {
	switch src.Kind {
	case recipe.KindFeed:
		doc, err := p.fetcher.Fetch(ctx, src.URL, core.FetchFeed)
		if err != nil {
			return nil, err
		}
		return extract.FeedRefs(doc.Body, doc.FinalURL, src, p.eng)

	case recipe.KindStructured:
		doc, err := p.fetcher.Fetch(ctx, src.URL, core.FetchIndex)
		if err != nil {
			return nil, err
		}
		return extract.StructuredRefs(doc.Body, doc.FinalURL, src, p.eng)

	default:
		doc, err := p.fetcher.Fetch(ctx, src.URL, core.FetchIndex)
		if err != nil {
			return nil, err
		}
		page, err := extract.ParseHTML(doc.Body, doc.FinalURL)
		if err != nil {
			return nil, err
		}
		return page.IndexRefs(src, p.eng)
	}
}

// processArticle turns one reference into a normalized article. progress is
// called when the item moves from fetching to extraction.
func (p *Pipeline) processArticle(ctx context.Context, ref core.ArticleRef, rule *recipe.ArticleRule, progress func(Status)) (*core.Article, error) {
	var data *extract.ArticleData
	baseURL := ref.URL

	switch {
	case ref.Content != "":
		// Inline content from the index; no article page fetch.
		progress(StatusExtracting)
		data = &extract.ArticleData{Content: ref.Content}
		if page, err := extract.ParseHTML([]byte(ref.Content), ref.URL); err == nil {
			extract.FillMetadata(data, page.Document())
		}

	case rule == nil:
		// No extraction rule applies. A placeholder chapter keeps the
		// reference navigable instead of silently dropping it.
		title := ref.Title
		if title == "" {
			title = ref.URL
		}
		return &core.Article{
			URL:   ref.URL,
			Title: title,
			Body: fmt.Sprintf(`<p>No extraction rule matched <a href="%s">%s</a>.</p>`,
				html.EscapeString(ref.URL), html.EscapeString(ref.URL)),
		}, nil

	case rule.Structured():
		doc, err := p.fetcher.Fetch(ctx, ref.URL, core.FetchArticle)
		if err != nil {
			return nil, err
		}
		progress(StatusExtracting)
		baseURL = doc.FinalURL
		data, err = extract.StructuredArticle(doc.Body, rule, p.eng)
		if err != nil {
			return nil, err
		}

	default:
		doc, err := p.fetcher.Fetch(ctx, ref.URL, core.FetchArticle)
		if err != nil {
			return nil, err
		}
		progress(StatusExtracting)
		baseURL = doc.FinalURL
		page, err := extract.ParseHTML(doc.Body, doc.FinalURL)
		if err != nil {
			return nil, err
		}
		data, err = page.Article(rule, p.eng)
		if err != nil {
			return nil, err
		}
	}

	body, assets, err := p.norm.Normalize(ctx, data.Content, rule, baseURL)
	if err != nil {
		return nil, err
	}

	title := data.Title
	if title == "" {
		title = ref.Title
	}
	if title == "" {
		title = ref.URL
	}

	return &core.Article{
		URL:    ref.URL,
		Title:  title,
		Author: data.Author,
		Date:   datefmt.ISO(data.Date),
		Body:   body,
		Assets: assets,
	}, nil
}

func coverAsset(rawURL string, data []byte) core.Asset {
	return core.Asset{
		Filename:  "cover" + urlutil.ImageExt(rawURL, data),
		MediaType: urlutil.ImageMediaType(rawURL, data),
		Data:      data,
	}
}
