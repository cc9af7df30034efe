package navigation

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/dgnsrekt/narrator/internal/index"
)

const containerPath = "META-INF/container.xml"

// ErrInvalidEPUB is returned when the archive lacks a usable package.
var ErrInvalidEPUB = errors.New("invalid epub")

type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type packageXML struct {
	Titles   []string       `xml:"metadata>title"`
	Manifest []manifestItem `xml:"manifest>item"`
	Spine    struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type ncxXML struct {
	NavPoints []navPoint `xml:"navMap>navPoint"`
}

type navPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

// EPUB reads chapters from an EPUB archive. The package document is read
// on Open; the table of contents is built once, on first use.
type EPUB struct {
	zr    *zip.ReadCloser
	files map[string]*zip.File

	title    string
	opfDir   string
	manifest []manifestItem
	byID     map[string]manifestItem
	spine    []string
	tocID    string

	once     sync.Once
	ready    chan struct{}
	chapters []ChapterRef
	tocErr   error
}

// OpenEPUB opens the archive at path and reads its package document.
func OpenEPUB(path string) (*EPUB, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}

	e := &EPUB{
		zr:    zr,
		files: make(map[string]*zip.File, len(zr.File)),
		byID:  make(map[string]manifestItem),
		ready: make(chan struct{}),
	}
	for _, f := range zr.File {
		e.files[f.Name] = f
	}

	if err := e.readPackage(); err != nil {
		zr.Close() //nolint:errcheck
		return nil, err
	}
	if e.title == "" {
		e.title = titleFromPath(path)
	}
	return e, nil
}

func (e *EPUB) readPackage() error {
	var c containerXML
	if err := e.decodeXML(containerPath, &c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEPUB, err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return fmt.Errorf("%w: no rootfile in container", ErrInvalidEPUB)
	}
	opfPath := c.Rootfiles[0].FullPath

	var pkg packageXML
	if err := e.decodeXML(opfPath, &pkg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEPUB, err)
	}

	e.opfDir = path.Dir(opfPath)
	if e.opfDir == "." {
		e.opfDir = ""
	}
	for _, t := range pkg.Titles {
		if t = strings.TrimSpace(t); t != "" {
			e.title = t
			break
		}
	}
	e.manifest = pkg.Manifest
	for _, item := range pkg.Manifest {
		e.byID[item.ID] = item
	}
	for _, ref := range pkg.Spine.ItemRefs {
		if item, ok := e.byID[ref.IDRef]; ok {
			e.spine = append(e.spine, item.Href)
		}
	}
	e.tocID = pkg.Spine.Toc
	return nil
}

// Title implements Provider.
func (e *EPUB) Title() string {
	return e.title
}

// Chapters implements Provider. Callers arriving while the table of
// contents is still being built wait for it, or for ctx.
func (e *EPUB) Chapters(ctx context.Context) ([]ChapterRef, error) {
	e.once.Do(func() {
		go func() {
			e.chapters, e.tocErr = e.buildTOC()
			close(e.ready)
		}()
	})

	select {
	case <-e.ready:
		if e.tocErr != nil {
			return nil, e.tocErr
		}
		out := make([]ChapterRef, len(e.chapters))
		copy(out, e.chapters)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// buildTOC prefers the EPUB3 nav document, then the NCX, then spine order.
func (e *EPUB) buildTOC() ([]ChapterRef, error) {
	var refs []ChapterRef

	for _, item := range e.manifest {
		if hasProperty(item.Properties, "nav") {
			if r, err := e.navTOC(item.Href); err == nil && len(r) > 0 {
				refs = r
			}
			break
		}
	}

	if refs == nil {
		if item, ok := e.ncxItem(); ok {
			if r, err := e.ncxTOC(item.Href); err == nil && len(r) > 0 {
				refs = r
			}
		}
	}

	if refs == nil {
		for i, href := range e.spine {
			refs = append(refs, ChapterRef{Href: href, Label: fmt.Sprintf("Section %d", i+1)})
		}
	}

	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no chapters", ErrInvalidEPUB)
	}
	for i := range refs {
		refs[i].Order = i
	}
	return refs, nil
}

func (e *EPUB) ncxItem() (manifestItem, bool) {
	if item, ok := e.byID[e.tocID]; ok {
		return item, true
	}
	for _, item := range e.manifest {
		if item.MediaType == "application/x-dtbncx+xml" {
			return item, true
		}
	}
	return manifestItem{}, false
}

func (e *EPUB) navTOC(href string) ([]ChapterRef, error) {
	data, err := e.readFile(e.resolve(href))
	if err != nil {
		return nil, err
	}
	links, err := parseNav(data)
	if err != nil {
		return nil, err
	}

	var refs []ChapterRef
	for _, l := range links {
		refs = append(refs, ChapterRef{Href: relativeTo(href, l.href), Label: l.label})
	}
	return refs, nil
}

func (e *EPUB) ncxTOC(href string) ([]ChapterRef, error) {
	var doc ncxXML
	if err := e.decodeXML(e.resolve(href), &doc); err != nil {
		return nil, err
	}

	var refs []ChapterRef
	var walk func([]navPoint)
	walk = func(points []navPoint) {
		for _, p := range points {
			if p.Content.Src != "" {
				refs = append(refs, ChapterRef{
					Href:  relativeTo(href, p.Content.Src),
					Label: strings.Join(strings.Fields(p.Label), " "),
				})
			}
			walk(p.Children)
		}
	}
	walk(doc.NavPoints)
	return refs, nil
}

// ChapterText implements Provider. href is relative to the package
// document; the fragment is ignored.
func (e *EPUB) ChapterText(_ context.Context, href string) (string, error) {
	target := index.StripFragment(href)
	name := e.resolve(target)
	if _, ok := e.files[name]; !ok {
		name = ""
		for _, item := range e.manifest {
			if index.Match(item.Href, target) {
				name = e.resolve(item.Href)
				break
			}
		}
	}
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrChapterNotFound, href)
	}

	data, err := e.readFile(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrChapterNotFound, href, err)
	}
	return htmlText(data)
}

// Close releases the archive.
func (e *EPUB) Close() error {
	return e.zr.Close()
}

// resolve maps a package-relative href to an archive member name.
func (e *EPUB) resolve(href string) string {
	href = index.StripFragment(href)
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if e.opfDir == "" {
		return path.Clean(href)
	}
	return path.Join(e.opfDir, href)
}

func (e *EPUB) readFile(name string) ([]byte, error) {
	f, ok := e.files[name]
	if !ok {
		return nil, fmt.Errorf("missing archive member %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	return io.ReadAll(rc)
}

func (e *EPUB) decodeXML(name string, v any) error {
	data, err := e.readFile(name)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// relativeTo rewrites a link found in the document at base so it is
// relative to the package directory, like manifest hrefs.
func relativeTo(base, link string) string {
	if strings.HasPrefix(link, "#") {
		return index.StripFragment(base) + link
	}
	dir := path.Dir(base)
	if dir == "." {
		return link
	}
	return path.Join(dir, link)
}

func hasProperty(props, want string) bool {
	for _, p := range strings.Fields(props) {
		if p == want {
			return true
		}
	}
	return false
}
