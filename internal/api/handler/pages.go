package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mobilille/mobilille/internal/api/response"
)

// Pages is the fixed list of pages served at /{page}.html.
var Pages = []string{
	"index", "article1", "article2", "article3",
	"ligne1", "ligne2", "bus", "vlille", "parkings", "contact",
}

// PagesHandler serves the HTML pages and static assets of the frontend.
type PagesHandler struct {
	templates string
	static    string
	logger    zerolog.Logger
}

// NewPagesHandler creates a PagesHandler rooted at dir. Pages are read
// from dir/templates and assets from dir/static.
func NewPagesHandler(dir string, logger zerolog.Logger) *PagesHandler {
	return &PagesHandler{
		templates: filepath.Join(dir, "templates"),
		static:    filepath.Join(dir, "static"),
		logger:    logger,
	}
}

// Page returns a handler serving templates/{page}.html.
func (h *PagesHandler) Page(page string) http.HandlerFunc {
	path := filepath.Join(h.templates, page+".html")

	return func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				h.logger.Error().Err(err).Str("page", page).Msg("failed to open page")
			}
			response.NotFound(w, r, "page "+page+" not found")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			response.NotFound(w, r, "page "+page+" not found")
			return
		}

		// ServeContent rather than ServeFile: ServeFile redirects /index.html.
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}

// Static returns the file server for /static/*.
func (h *PagesHandler) Static() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir(h.static)))
}
