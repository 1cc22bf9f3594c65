package handlers

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/catalog"
	"checkout_back_end/internal/models"

	"github.com/gin-gonic/gin"
)

// ProductHandlers expose le flux catalogue public
type ProductHandlers struct {
	catalog catalog.Catalog
}

func NewProductHandlers(cat catalog.Catalog) *ProductHandlers {
	return &ProductHandlers{catalog: cat}
}

type productFeed struct {
	XMLName  xml.Name         `xml:"products" json:"-"`
	Products []models.Product `xml:"product" json:"products"`
}

// Feed — GET /products?format=json|csv|tsv|xml
func (h *ProductHandlers) Feed(c *gin.Context) {
	products, err := h.catalog.All(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, apperrors.Wrap(apperrors.KindDependency, "Catalogue indisponible", err))
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, productFeed{Products: products})
	case "csv":
		writeSeparated(c, products, ',', "text/csv; charset=utf-8")
	case "tsv":
		writeSeparated(c, products, '\t', "text/tab-separated-values; charset=utf-8")
	case "xml":
		c.XML(http.StatusOK, productFeed{Products: products})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Format non supporté (json, csv, tsv, xml)"})
	}
}

func writeSeparated(c *gin.Context, products []models.Product, sep rune, contentType string) {
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	w.Comma = sep

	_ = w.Write([]string{"sku", "product_ref", "name", "price", "currency", "stock", "purchasable", "tax_class"})
	for _, p := range products {
		_ = w.Write([]string{
			p.SKU,
			p.ProductRef,
			p.Name,
			fmt.Sprintf("%.2f", p.Price),
			p.Currency,
			strconv.Itoa(p.Stock),
			strconv.FormatBool(p.Purchasable),
			p.TaxClass,
		})
	}
	w.Flush()
}
