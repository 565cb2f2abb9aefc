package handlers

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

var errInvalidPage = errors.New("invalid page")

// maxOffset bounds the first row a page may start at.
const maxOffset = math.MaxInt32

// pageRequest is the page asked for by the client.
type pageRequest struct {
	Page    int
	PerPage int
}

func (p pageRequest) offset() int {
	return (p.Page - 1) * p.PerPage
}

// parsePage reads ?page= and ?page_size=. A page that is not a positive
// integer is invalid; page_size falls back to the default and is capped.
func parsePage(c *fiber.Ctx, defaultSize, maxSize int) (pageRequest, error) {
	req := pageRequest{Page: 1, PerPage: defaultSize}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return req, errInvalidPage
		}
		req.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			req.PerPage = size
		}
	}
	if maxSize > 0 && req.PerPage > maxSize {
		req.PerPage = maxSize
	}
	if req.PerPage <= 0 {
		req.PerPage = 20
	}
	if req.Page-1 > maxOffset/req.PerPage {
		return req, errInvalidPage
	}
	return req, nil
}

// Page is the envelope returned by list endpoints.
type Page struct {
	Count    int64       `json:"count"`
	Next     *int        `json:"next"`
	Previous *int        `json:"previous"`
	Results  interface{} `json:"results"`
}

// newPage builds the envelope for req. Pages past the end are invalid except
// for the first page of an empty listing.
func newPage(req pageRequest, total int64, results interface{}) (Page, error) {
	totalPages := int(math.Ceil(float64(total) / float64(req.PerPage)))
	if req.Page > 1 && req.Page > totalPages {
		return Page{}, errInvalidPage
	}

	page := Page{Count: total, Results: results}
	if req.Page < totalPages {
		next := req.Page + 1
		page.Next = &next
	}
	if req.Page > 1 {
		prev := req.Page - 1
		page.Previous = &prev
	}
	return page, nil
}
