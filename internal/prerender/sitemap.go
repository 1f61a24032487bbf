package prerender

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type sitemapDoc struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// writeSitemap lists routes as absolute URLs under siteURL in
// outDir/sitemap.xml.
func writeSitemap(outDir, siteURL string, routes []string, now time.Time) (string, error) {
	base := strings.TrimRight(siteURL, "/")
	doc := sitemapDoc{Xmlns: sitemapNS}
	for _, r := range routes {
		doc.URLs = append(doc.URLs, sitemapURL{Loc: base + r, LastMod: now.UTC().Format("2006-01-02")})
	}

	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	out := filepath.Join(outDir, "sitemap.xml")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	return out, os.WriteFile(out, append([]byte(xml.Header), append(b, '\n')...), 0o644)
}
