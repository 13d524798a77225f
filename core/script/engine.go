// Package script runs user-supplied extension scripts from recipes.
// Scripts are JavaScript, evaluated hermetically: a fresh VM per run, only
// the injected read-only context in scope, no imports, no filesystem or
// network access, and a hard wall-clock interrupt. Every run must produce
// exactly one return value of the phase's expected shape; anything else is a
// checked error, never a silent coercion.
package script

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds a single script execution.
const DefaultTimeout = 10 * time.Second

// ErrorKind classifies a script failure.
type ErrorKind string

const (
	KindFault     ErrorKind = "script-fault"
	KindTimeout   ErrorKind = "script-timeout"
	KindBadReturn ErrorKind = "script-return-type-mismatch"
)

// Error is a classified script failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IndexItem is one entry returned by an index-phase script.
type IndexItem struct {
	URL     string
	Title   string
	Content string
}

// ArticleResult is the value returned by an article-phase script.
type ArticleResult struct {
	Content string
	Title   string
	Author  string
	Date    string
}

// Engine evaluates recipe scripts with a shared timeout.
type Engine struct {
	timeout time.Duration
}

// New creates an Engine. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{timeout: timeout}
}

// run evaluates source as a function body with vars in scope and returns the
// exported return value.
func (e *Engine) run(source string, vars map[string]any) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	for name, value := range vars {
		if err := vm.Set(name, value); err != nil {
			return nil, &Error{Kind: KindFault, Err: err}
		}
	}

	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	// Wrapping as a function body gives scripts a proper `return` statement,
	// which is the contract: exactly one returned value.
	wrapped := "(function() {\n" + source + "\n})()"

	value, err := vm.RunString(wrapped)
	if err != nil {
		var interrupted *goja.InterruptedError
		if ok := asGojaInterrupt(err, &interrupted); ok {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindFault, Err: err}
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, &Error{Kind: KindBadReturn, Err: fmt.Errorf("script returned no value")}
	}
	return value.Export(), nil
}

func asGojaInterrupt(err error, target **goja.InterruptedError) bool {
	if ie, ok := err.(*goja.InterruptedError); ok {
		*target = ie
		return true
	}
	return false
}

// RunIndex evaluates an index-phase script, which must return a list of
// objects each carrying a url string and an optional content string.
func (e *Engine) RunIndex(source string, vars map[string]any) ([]IndexItem, error) {
	out, err := e.run(source, vars)
	if err != nil {
		return nil, err
	}

	list, ok := out.([]any)
	if !ok {
		return nil, &Error{Kind: KindBadReturn,
			Err: fmt.Errorf("index script must return a list, got %T", out)}
	}

	items := make([]IndexItem, 0, len(list))
	for i, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, &Error{Kind: KindBadReturn,
				Err: fmt.Errorf("index script item %d must be an object with a 'url' key, got %T", i, raw)}
		}
		u, ok := entry["url"].(string)
		if !ok || u == "" {
			return nil, &Error{Kind: KindBadReturn,
				Err: fmt.Errorf("index script item %d is missing a 'url' string", i)}
		}
		item := IndexItem{URL: u}
		if title, ok := entry["title"].(string); ok {
			item.Title = title
		}
		if content, ok := entry["content"].(string); ok {
			item.Content = content
		}
		items = append(items, item)
	}
	return items, nil
}

// RunArticle evaluates an article-phase script, which must return either a
// content string or an object with a content string plus optional
// title/author/date strings. Metadata fields the script leaves empty are
// the caller's to fill.
func (e *Engine) RunArticle(source string, vars map[string]any) (*ArticleResult, error) {
	out, err := e.run(source, vars)
	if err != nil {
		return nil, err
	}

	switch v := out.(type) {
	case string:
		return &ArticleResult{Content: v}, nil
	case map[string]any:
		content, ok := v["content"].(string)
		if !ok {
			return nil, &Error{Kind: KindBadReturn,
				Err: fmt.Errorf("article script object must have a 'content' string")}
		}
		res := &ArticleResult{Content: content}
		res.Title, _ = v["title"].(string)
		res.Author, _ = v["author"].(string)
		res.Date, _ = v["date"].(string)
		return res, nil
	default:
		return nil, &Error{Kind: KindBadReturn,
			Err: fmt.Errorf("article script must return a string or an object, got %T", out)}
	}
}

// RunString evaluates a script that must return a plain string (cover and
// URL-transform phases).
func (e *Engine) RunString(source string, vars map[string]any) (string, error) {
	out, err := e.run(source, vars)
	if err != nil {
		return "", err
	}

	s, ok := out.(string)
	if !ok {
		return "", &Error{Kind: KindBadReturn,
			Err: fmt.Errorf("script must return a string, got %T", out)}
	}
	return s, nil
}
