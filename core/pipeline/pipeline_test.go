package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claudehenchoz/gensi/core/fetch"
	"github.com/claudehenchoz/gensi/core/recipe"
)

func articlePage(title string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head>
		<body><div class="content"><p>Body of %s.</p></div></body></html>`, title, title)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="story"><a href="/articles/alpha">Alpha</a></div>
			<div class="story"><a href="/articles/beta">Beta</a></div>
			<div class="story"><a href="/articles/gamma">Gamma</a></div>
		</body></html>`)
	})
	mux.HandleFunc("/articles/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/articles/")
		if name == "broken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, articlePage(name))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newPipeline(t *testing.T, dir string) *Pipeline {
	t.Helper()
	return New(Options{
		Fetcher:   fetch.New(fetch.Options{}),
		OutputDir: dir,
	})
}

func readPackage(t *testing.T, path string) string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Opening epub failed: %v", err)
	}
	defer r.Close()

	var b strings.Builder
	for _, f := range r.File {
		rc, _ := f.Open()
		data, _ := io.ReadAll(rc)
		rc.Close()
		b.Write(data)
	}
	return b.String()
}

func TestRun_EndToEnd(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()

	rec := &recipe.Recipe{
		Title:    "Minimal",
		Language: "en",
		Indices: []recipe.IndexSource{{
			URL:   srv.URL + "/news",
			Kind:  recipe.KindHTML,
			Items: "div.story",
			Links: "a",
		}},
		Article: &recipe.ArticleRule{Content: "div.content"},
	}

	job := newPipeline(t, dir).Submit(context.Background(), rec)
	for range job.Events() {
	}

	result, err := job.Wait()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Articles != 3 {
		t.Errorf("Expected 3 articles, got %d", result.Articles)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("Expected no skips, got %v", result.Skipped)
	}
	if !strings.HasSuffix(result.OutputPath, "minimal.epub") {
		t.Errorf("Unexpected output path: %s", result.OutputPath)
	}

	contents := readPackage(t, result.OutputPath)
	for _, want := range []string{"Body of alpha.", "Body of beta.", "Body of gamma."} {
		if !strings.Contains(contents, want) {
			t.Errorf("Package missing %q", want)
		}
	}
	// Discovery order decides chapter order.
	if strings.Index(contents, "Body of alpha.") > strings.Index(contents, "Body of gamma.") {
		t.Error("Articles out of index order")
	}
}

func TestRun_LimitTruncatesAfterOrdering(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()

	rec := &recipe.Recipe{
		Title: "Limited",
		Indices: []recipe.IndexSource{{
			URL:   srv.URL + "/news",
			Kind:  recipe.KindHTML,
			Items: "div.story",
			Links: "a",
			Limit: 2,
		}},
		Article: &recipe.ArticleRule{Content: "div.content"},
	}

	job := newPipeline(t, dir).Submit(context.Background(), rec)
	result, err := job.Wait()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Articles != 2 {
		t.Errorf("Expected 2 articles, got %d", result.Articles)
	}
	contents := readPackage(t, result.OutputPath)
	if strings.Contains(contents, "Body of gamma.") {
		t.Error("Limit must drop trailing articles")
	}
	if !strings.Contains(contents, "Body of alpha.") {
		t.Error("Limit must keep leading articles")
	}
}

func TestRun_FailedArticleIsSkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="story"><a href="/articles/ok">OK</a></div>
			<div class="story"><a href="/articles/broken">Broken</a></div>
		</body></html>`)
	})
	mux.HandleFunc("/articles/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("ok"))
	})
	mux.HandleFunc("/articles/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	dir := t.TempDir()

	rec := &recipe.Recipe{
		Title: "Partial",
		Indices: []recipe.IndexSource{{
			URL:   srv.URL + "/news",
			Kind:  recipe.KindHTML,
			Items: "div.story",
			Links: "a",
		}},
		Article: &recipe.ArticleRule{Content: "div.content"},
	}

	job := newPipeline(t, dir).Submit(context.Background(), rec)

	var failed []Event
	for ev := range job.Events() {
		if ev.Status == StatusFailed {
			failed = append(failed, ev)
		}
	}

	result, err := job.Wait()
	if err != nil {
		t.Fatalf("One bad article must not fail the build: %v", err)
	}
	if result.Articles != 1 {
		t.Errorf("Expected 1 article, got %d", result.Articles)
	}
	if len(result.Skipped) != 1 || !strings.Contains(result.Skipped[0].URL, "/articles/broken") {
		t.Errorf("Unexpected skip list: %v", result.Skipped)
	}
	if len(failed) != 1 {
		t.Errorf("Expected 1 failure event, got %d", len(failed))
	}
}

func TestRun_ScriptFaultSkipsArticleOnly(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()

	rec := &recipe.Recipe{
		Title: "Scripted",
		Indices: []recipe.IndexSource{{
			URL:   srv.URL + "/news",
			Kind:  recipe.KindHTML,
			Items: "div.story",
			Links: "a",
			Limit: 2,
		}},
		Article: &recipe.ArticleRule{Script: &recipe.ScriptRule{Source: `
			var body = document.find("div.content")[0].html();
			if (body.indexOf("alpha") >= 0) throw new Error("refused");
			return body;
		`}},
	}

	job := newPipeline(t, dir).Submit(context.Background(), rec)
	result, err := job.Wait()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Articles != 1 {
		t.Errorf("Expected 1 article, got %d", result.Articles)
	}
	if len(result.Skipped) != 1 || !strings.Contains(result.Skipped[0].Reason, "refused") {
		t.Errorf("Unexpected skip list: %+v", result.Skipped)
	}
}

func TestRun_AllArticlesFailedAbortsBuild(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="story"><a href="/articles/broken">x</a></div></body></html>`)
	})
	mux.HandleFunc("/articles/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recipe.Recipe{
		Title: "Doomed",
		Indices: []recipe.IndexSource{{
			URL:   srv.URL + "/news",
			Kind:  recipe.KindHTML,
			Items: "div.story",
			Links: "a",
		}},
		Article: &recipe.ArticleRule{Content: "div.content"},
	}

	job := newPipeline(t, t.TempDir()).Submit(context.Background(), rec)
	_, err := job.Wait()
	if !errors.Is(err, ErrNoArticles) {
		t.Fatalf("Expected ErrNoArticles, got %v", err)
	}
}

func TestRun_FailedSourceDropsSectionOnly(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()

	rec := &recipe.Recipe{
		Title: "Two Sources",
		Indices: []recipe.IndexSource{
			{
				Name:  "Dead",
				URL:   srv.URL + "/missing-index",
				Kind:  recipe.KindHTML,
				Items: "div.story",
				Links: "a",
			},
			{
				Name:  "Live",
				URL:   srv.URL + "/news",
				Kind:  recipe.KindHTML,
				Items: "div.story",
				Links: "a",
				Limit: 1,
			},
		},
		Article: &recipe.ArticleRule{Content: "div.content"},
	}

	job := newPipeline(t, dir).Submit(context.Background(), rec)
	result, err := job.Wait()
	if err != nil {
		t.Fatalf("A dead source must not fail the build: %v", err)
	}

	if result.Articles != 1 {
		t.Errorf("Expected 1 article from the live source, got %d", result.Articles)
	}
	if len(result.Skipped) != 1 || !strings.Contains(result.Skipped[0].URL, "/missing-index") {
		t.Errorf("Unexpected skip list: %v", result.Skipped)
	}
}

func TestRun_FeedWithInlineContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>F</title>
<item><title>Inline Post</title><link>https://example.com/p/1</link>
<description><![CDATA[<p>Inline body here.</p>]]></description></item>
</channel></rss>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	dir := t.TempDir()

	rec := &recipe.Recipe{
		Title: "Feed Book",
		Indices: []recipe.IndexSource{{
			URL:           srv.URL + "/feed",
			Kind:          recipe.KindFeed,
			InlineContent: true,
		}},
	}

	job := newPipeline(t, dir).Submit(context.Background(), rec)
	result, err := job.Wait()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Articles != 1 {
		t.Fatalf("Expected 1 article, got %d", result.Articles)
	}
	contents := readPackage(t, result.OutputPath)
	if !strings.Contains(contents, "Inline body here.") {
		t.Error("Inline feed content missing from package")
	}
	if !strings.Contains(contents, "Inline Post") {
		t.Error("Feed item title missing from package")
	}
}

func TestRun_EventsAreLosslessForSlowConsumers(t *testing.T) {
	const articleCount = 40

	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		for i := 0; i < articleCount; i++ {
			fmt.Fprintf(w, `<div class="story"><a href="/articles/a%d">A%d</a></div>`, i, i)
		}
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/articles/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(strings.TrimPrefix(r.URL.Path, "/articles/")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recipe.Recipe{
		Title: "Busy",
		Indices: []recipe.IndexSource{{
			URL:   srv.URL + "/news",
			Kind:  recipe.KindHTML,
			Items: "div.story",
			Links: "a",
		}},
		Article: &recipe.ArticleRule{Content: "div.content"},
	}

	job := newPipeline(t, t.TempDir()).Submit(context.Background(), rec)

	// Start draining only after the run has had time to overrun the event
	// buffer. Every per-article done event must still arrive.
	time.Sleep(100 * time.Millisecond)
	var done int
	for ev := range job.Events() {
		if ev.Phase == PhaseArticle && ev.Status == StatusDone {
			done++
		}
	}

	if _, err := job.Wait(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if done != articleCount {
		t.Errorf("Expected %d done events, got %d", articleCount, done)
	}
}

func TestRun_CancelledContextAbortsWithoutOutput(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()

	rec := &recipe.Recipe{
		Title: "Cancelled",
		Indices: []recipe.IndexSource{{
			URL:   srv.URL + "/news",
			Kind:  recipe.KindHTML,
			Items: "div.story",
			Links: "a",
		}},
		Article: &recipe.ArticleRule{Content: "div.content"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := newPipeline(t, dir).Submit(ctx, rec)
	result, err := job.Wait()
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if result != nil {
		t.Errorf("No result expected after cancellation, got %+v", result)
	}
}
