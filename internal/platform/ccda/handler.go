package ccda

import (
	"io"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/cdastats/internal/platform/fhir"
)

// Handler provides stateless HTTP endpoints for extraction previews and
// synthetic documents. Nothing it does touches the document store.
type Handler struct {
	generator *Generator
	parser    *Parser
}

// NewHandler creates a new CDA handler.
func NewHandler(generator *Generator, parser *Parser) *Handler {
	return &Handler{
		generator: generator,
		parser:    parser,
	}
}

// RegisterRoutes registers CDA endpoints on the provided route group.
//
//	POST /api/v1/ccda/extract  - Extract one document without storing it
//	GET  /api/v1/ccda/sample   - Generate a synthetic CDA document
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/ccda/extract", h.Extract)
	g.GET("/ccda/sample", h.Sample)
}

// Extract handles POST /api/v1/ccda/extract.
// It accepts an XML body and returns the extracted document as JSON, or
// as a FHIR collection Bundle with ?format=fhir.
func (h *Handler) Extract(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		name = "document.xml"
	}
	if c.QueryParam("format") == "fhir" {
		return h.extractFHIR(c, name)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}

	doc, err := h.parser.Parse(name, body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) extractFHIR(c echo.Context, name string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}
	doc, err := h.parser.Parse(name, body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome("error", "structure", err.Error()))
	}
	bundle, err := fhir.NewCollectionBundle("", doc.ToFHIR("doc-1"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

// Sample handles GET /api/v1/ccda/sample?seed=N.
// The same seed always describes the same patient.
func (h *Handler) Sample(c echo.Context) error {
	seed := int64(1)
	if s := c.QueryParam("seed"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "seed must be an integer",
			})
		}
		seed = v
	}

	rec := h.generator.RandomRecord(rand.New(rand.NewSource(seed)))
	xmlData, err := h.generator.Generate(rec)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to generate document: " + err.Error(),
		})
	}

	return c.Blob(http.StatusOK, "application/xml", xmlData)
}
