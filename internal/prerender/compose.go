package prerender

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const (
	// AppPlaceholder marks where rendered markup goes in the template.
	AppPlaceholder = "<!--app-html-->"
	headClose      = "</head>"

	DefaultGlobalName = "__REACT_QUERY_STATE__"
)

var ErrMissingMarker = errors.New("template marker missing")

// Compose inserts a script assigning payload to window.<globalName> before the
// first </head> and replaces the first app placeholder with appHTML. payload
// must already be escaped for a script context.
func Compose(tmpl, appHTML string, payload []byte, globalName string) (string, error) {
	if !strings.Contains(tmpl, AppPlaceholder) {
		return "", fmt.Errorf("%w: %s", ErrMissingMarker, AppPlaceholder)
	}
	i := strings.Index(tmpl, headClose)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingMarker, headClose)
	}
	if globalName == "" {
		globalName = DefaultGlobalName
	}

	var b strings.Builder
	b.Grow(len(tmpl) + len(appHTML) + len(payload) + len(globalName) + 32)
	b.WriteString(tmpl[:i])
	b.WriteString("<script>window.")
	b.WriteString(globalName)
	b.WriteString(" = ")
	b.Write(payload)
	b.WriteString(";</script>")
	b.WriteString(tmpl[i:])

	return strings.Replace(b.String(), AppPlaceholder, appHTML, 1), nil
}

// OutputPath maps a route to its file under outDir: "/" is index.html and
// "/a/b" is a/b/index.html. Query strings do not affect the path.
func OutputPath(outDir, route string) (string, error) {
	u, err := url.Parse(route)
	if err != nil {
		return "", fmt.Errorf("route %q: %w", route, err)
	}
	if !strings.HasPrefix(u.Path, "/") {
		return "", fmt.Errorf("route %q must start with /", route)
	}
	clean := path.Clean(u.Path)
	if clean == "/" {
		return filepath.Join(outDir, "index.html"), nil
	}
	return filepath.Join(outDir, filepath.FromSlash(strings.TrimPrefix(clean, "/")), "index.html"), nil
}
