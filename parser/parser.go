// Package parser holds the pure HTML extraction functions for the
// catalog site. Every function takes raw HTML plus the URLs needed for
// absolute resolution; none of them perform I/O.
package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-bookstore-crawler/models"
)

// Placeholder values emitted when a structural element is missing.
// Malformed entries are retained with these markers, never dropped, so
// page-level item counts stay auditable.
const (
	NoTitle       = "No title"
	NoPrice       = "No price"
	NoDescription = "No description"
	NotAvailable  = "N/A"
)

// categoryHrefMarker identifies catalog-category anchors on the root page.
const categoryHrefMarker = "catalogue/category"

// detailFields maps the info-table header labels on a detail page to
// setters on ItemDetail. Labels absent from the page get NotAvailable.
var detailFields = map[string]func(*models.ItemDetail, string){
	"UPC":               func(d *models.ItemDetail, v string) { d.CatalogCode = v },
	"Product Type":      func(d *models.ItemDetail, v string) { d.ProductType = v },
	"Price (excl. tax)": func(d *models.ItemDetail, v string) { d.PriceExclTax = v },
	"Price (incl. tax)": func(d *models.ItemDetail, v string) { d.PriceInclTax = v },
	"Tax":               func(d *models.ItemDetail, v string) { d.Tax = v },
	"Availability":      func(d *models.ItemDetail, v string) { d.Availability = v },
	"Number of reviews": func(d *models.ItemDetail, v string) { d.ReviewCount = v },
}

// Categories extracts every catalog-category link from the root page in
// document order. URLs are resolved to absolute form against baseURL.
// Anchors with unparseable hrefs or empty visible text are skipped;
// duplicates are passed through untouched.
func Categories(html, baseURL string) ([]models.CategoryRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse categories html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	var refs []models.CategoryRef
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		label := strings.TrimSpace(sel.Text())
		if label == "" || !strings.Contains(href, categoryHrefMarker) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		refs = append(refs, models.CategoryRef{
			Label: label,
			URL:   base.ResolveReference(ref).String(),
		})
	})
	return refs, nil
}

// Items extracts one ItemSummary per item container on a listing page.
// Title and price fall back to placeholder text when missing; image and
// detail URLs are resolved against pageURL and stay empty when the
// container lacks the image link.
func Items(html, category, pageURL string) ([]models.ItemSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var items []models.ItemSummary
	doc.Find("ol.row").Each(func(_ int, row *goquery.Selection) {
		row.Find(".product_pod").Each(func(_ int, pod *goquery.Selection) {
			item := models.ItemSummary{
				Category: category,
				Title:    NoTitle,
				Price:    NoPrice,
			}

			if title := strings.TrimSpace(pod.Find("h3").First().Text()); title != "" {
				item.Title = title
			}
			if price := strings.TrimSpace(pod.Find("p.price_color").First().Text()); price != "" {
				item.Price = price
			}

			container := pod.Find(".image_container").First()
			if src, ok := container.Find("img").First().Attr("src"); ok {
				item.ImageURL = resolve(page, src)
			}
			if href, ok := container.Find("a").First().Attr("href"); ok {
				item.DetailURL = resolve(page, href)
			}

			items = append(items, item)
		})
	})
	return items, nil
}

// NextPageURL finds the single "next" pagination control on a listing
// page and returns its absolute URL, or "" when there is none. The href
// is resolved against the category's base path, not the literal current
// page URL: pagination links on the source site are relative to the
// category root even when the page itself sits deeper in the tree.
func NextPageURL(html, currentURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse pagination html: %w", err)
	}

	href, ok := doc.Find("li.next a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", nil
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, nil
	}

	base, err := url.Parse(categoryBase(currentURL))
	if err != nil {
		return "", fmt.Errorf("parse current url: %w", err)
	}
	next, err := url.Parse(href)
	if err != nil {
		return "", nil
	}
	return base.ResolveReference(next).String(), nil
}

// Details extracts the enrichment attributes from an item detail page.
// Missing fields carry sentinel values emitted here, so a parsed detail
// record is always fully populated.
func Details(html string) (models.ItemDetail, error) {
	detail := models.ItemDetail{
		Title:        NoTitle,
		Description:  NoDescription,
		CatalogCode:  NotAvailable,
		ProductType:  NotAvailable,
		PriceExclTax: NotAvailable,
		PriceInclTax: NotAvailable,
		Tax:          NotAvailable,
		Availability: NotAvailable,
		ReviewCount:  NotAvailable,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return detail, fmt.Errorf("parse detail html: %w", err)
	}

	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		detail.Title = title
	}
	if desc := strings.TrimSpace(doc.Find("article.product_page > p").First().Text()); desc != "" {
		detail.Description = desc
	}

	doc.Find("th").Each(func(_ int, th *goquery.Selection) {
		set, ok := detailFields[strings.TrimSpace(th.Text())]
		if !ok {
			return
		}
		if value := strings.TrimSpace(th.Next().Text()); value != "" {
			set(&detail, value)
		}
	})

	return detail, nil
}

// NormalizePrice removes currency symbols and surrounding whitespace
// from a display price.
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	price = strings.ReplaceAll(price, "£", "")
	price = strings.ReplaceAll(price, "Â", "")
	return strings.TrimSpace(price)
}

// PriceValue converts a display price to a float for aggregation,
// returning 0 when the price is a placeholder or unparseable.
func PriceValue(price string) float64 {
	value, err := strconv.ParseFloat(NormalizePrice(price), 64)
	if err != nil {
		return 0
	}
	return value
}

// InStock reports whether an availability string indicates stock.
func InStock(availability string) bool {
	return strings.Contains(strings.ToLower(availability), "in stock")
}

// categoryBase trims a page URL back to its enclosing directory,
// keeping the trailing slash.
func categoryBase(pageURL string) string {
	if idx := strings.LastIndex(pageURL, "/"); idx >= 0 {
		return pageURL[:idx+1]
	}
	return pageURL
}

// resolve makes href absolute against page, returning href untouched
// when it cannot be parsed.
func resolve(page *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return page.ResolveReference(ref).String()
}
