package listener

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// Page names served by the listener.
const (
	HelloPage    = "hello.html"
	NotFoundPage = "404.html"
)

//go:embed pages/*.html
var embedded embed.FS

// pages holds the response bodies loaded once at startup.
type pages struct {
	hello    []byte
	notFound []byte
}

// loadPages reads both pages from dir, or from the embedded copies when dir
// is empty.
func loadPages(dir string) (pages, error) {
	var src fs.FS
	if dir == "" {
		sub, err := fs.Sub(embedded, "pages")
		if err != nil {
			return pages{}, fmt.Errorf("open embedded pages: %w", err)
		}
		src = sub
	} else {
		src = os.DirFS(dir)
	}
	hello, err := fs.ReadFile(src, HelloPage)
	if err != nil {
		return pages{}, fmt.Errorf("read %s: %w", HelloPage, err)
	}
	notFound, err := fs.ReadFile(src, NotFoundPage)
	if err != nil {
		return pages{}, fmt.Errorf("read %s: %w", NotFoundPage, err)
	}
	return pages{hello: hello, notFound: notFound}, nil
}
