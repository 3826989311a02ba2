package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

const dashboardLimit = 50

// index renders the recent runs as a small HTML page.
func (h *handler) index(c echo.Context) error {
	runs, err := h.Store.ListRuns(c.Request().Context(), dashboardLimit)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, runs); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
