package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/WessleyAI/dealflow/engine/domain"
)

// ErrSitemapIndex is returned for sitemap index documents, which list other
// sitemaps rather than pages.
var ErrSitemapIndex = fmt.Errorf("%w: sitemap index not supported", ErrMalformed)

var skipExtensions = map[string]bool{
	".xml": true, ".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

type urlSet struct {
	XMLName xml.Name
	URLs    []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

// Sitemap reads XML sitemaps. Detail parsing is minimal: headline, financial
// fragments and a text sample.
type Sitemap struct{}

// NewSitemap returns the sitemap parser.
func NewSitemap() *Sitemap { return &Sitemap{} }

func (p *Sitemap) Key() Key { return KeySitemap }

func (p *Sitemap) ParseIndex(src domain.Source, raw []byte) ([]domain.Stub, error) {
	base, err := parseBase(src)
	if err != nil {
		return nil, err
	}
	var doc urlSet
	if err := xml.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch doc.XMLName.Local {
	case "urlset":
	case "sitemapindex":
		return nil, ErrSitemapIndex
	default:
		return nil, fmt.Errorf("%w: unexpected root <%s>", ErrMalformed, doc.XMLName.Local)
	}

	set := newStubSet()
	for _, entry := range doc.URLs {
		u, ok := resolve(base, entry.Loc)
		if !ok || skipExtensions[strings.ToLower(path.Ext(u.Path))] {
			continue
		}
		set.add(domain.Stub{URL: u.String(), DateHint: strings.TrimSpace(entry.LastMod)})
	}
	return set.stubs, nil
}

func (p *Sitemap) ParseDetail(src domain.Source, _ domain.Stub, raw []byte) (domain.ExtractedFields, error) {
	base, err := parseBase(src)
	if err != nil {
		return domain.ExtractedFields{}, err
	}
	return extractDetail(raw, base, detailOptions{minimal: true})
}
