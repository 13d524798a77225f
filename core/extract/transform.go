package extract

import (
	"fmt"
	"regexp"

	"github.com/claudehenchoz/gensi/core/recipe"
	"github.com/claudehenchoz/gensi/core/script"
)

// TransformURL rewrites an extracted article URL through the source's
// url_transform rule, commonly to swap a listing URL for a print or AMP
// variant. A pattern that does not match leaves the URL unchanged.
func TransformURL(rawURL string, tr *recipe.URLTransform, eng *script.Engine) (string, error) {
	if tr == nil {
		return rawURL, nil
	}

	if tr.Script != nil {
		out, err := eng.RunString(tr.Script.Source, map[string]any{"url": rawURL})
		if err != nil {
			return "", wrapScript("url transform script", err)
		}
		return out, nil
	}

	re, err := regexp.Compile(tr.Pattern)
	if err != nil {
		return "", &Error{Kind: KindParse, Rule: tr.Pattern,
			Err: fmt.Errorf("invalid url_transform pattern: %w", err)}
	}

	match := re.FindStringSubmatchIndex(rawURL)
	if match == nil {
		return rawURL, nil
	}
	return string(re.ExpandString(nil, tr.Template, rawURL, match)), nil
}
