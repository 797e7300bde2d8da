package fetcher

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// MaxSize is the largest file Fetch will download.
const MaxSize = 10 * 1024 * 1024

// File is a file ready to upload.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BlobStr returns the file's bytes base64 encoded, as content entries
// store them.
func (f File) BlobStr() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// Load reads src, which is either a URL or a local path.
func Load(src string) (File, error) {
	if IsURL(src) {
		return FetchFile(src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return File{}, fmt.Errorf("read file: %w", err)
	}
	return File{
		Filename:    filepath.Base(src),
		ContentType: mime.TypeByExtension(filepath.Ext(src)),
		Data:        data,
	}, nil
}

// FetchFile downloads the file at rawURL. When the URL serves an HTML page,
// the page's og:image, or else its first image, is downloaded instead.
func FetchFile(rawURL string) (File, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return File{}, err
	}

	f, err := get(u)
	if err != nil {
		return File{}, err
	}
	if !isHTML(f.ContentType) {
		return f, nil
	}

	src := findImage(string(f.Data))
	if src == "" {
		return File{}, fmt.Errorf("no image found on %s", u)
	}
	imgURL, err := u.Parse(src)
	if err != nil {
		return File{}, fmt.Errorf("invalid image URL %q: %w", src, err)
	}
	f, err = get(imgURL)
	if err != nil {
		return File{}, err
	}
	if isHTML(f.ContentType) {
		return File{}, fmt.Errorf("image %s is an HTML page", imgURL)
	}
	return f, nil
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

func parseURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "www.") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return u, nil
}

func get(u *url.URL) (File, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return File{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "happz/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return File{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return File{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxSize {
		return File{}, fmt.Errorf("%s is larger than %d bytes", u, MaxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return File{
		Filename:    filename(u, contentType),
		ContentType: contentType,
		Data:        body,
	}, nil
}

// filename names a download after the last URL path segment, adding an
// extension from the content type when the segment has none.
func filename(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = "download"
	}
	if path.Ext(name) != "" {
		return name
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return name + exts[0]
	}
	return name
}

func isHTML(contentType string) bool {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	return mediaType == "text/html"
}

// findImage returns the og:image of a page, or else the src of its first
// img element.
func findImage(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var ogImage, firstImg string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				if attr(n, "property") == "og:image" && ogImage == "" {
					ogImage = attr(n, "content")
				}
			case "img":
				if firstImg == "" {
					firstImg = attr(n, "src")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if ogImage != "" {
		return ogImage
	}
	return firstImg
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
