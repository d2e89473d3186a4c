// Package listing caches pages of the public job listing. Every entry key
// embeds the catalog version; a job mutation bumps the version so older
// entries are never read again and simply age out.
package listing

import (
	"crypto/md5"
	"fmt"
	"strings"

	"jobhub/internal/storage"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Query is a listing request as received from the caller.
type Query struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
}

// Normalize clamps paging and canonicalizes the text filters, so that
// equivalent requests share one cache entry.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Search = strings.ToLower(strings.Join(strings.Fields(q.Search), " "))
	q.Category = strings.ToLower(strings.TrimSpace(q.Category))
	return q
}

// Filter converts a normalized query to the store filter.
func (q Query) Filter() storage.ListingFilter {
	return storage.ListingFilter{
		Search:   q.Search,
		Category: q.Category,
		Limit:    q.PageSize,
		Offset:   (q.Page - 1) * q.PageSize,
	}
}

// Key is the cache key of a normalized query under a catalog version.
func (q Query) Key(version int64) string {
	hash := md5.Sum([]byte(q.Search + "|" + q.Category))
	return fmt.Sprintf("jobs:listing:v%d:p%d:s%d:%x", version, q.Page, q.PageSize, hash)
}

// Page is one cached listing result.
type Page struct {
	Jobs       []storage.JobSummary `json:"jobs"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

func NewPage(q Query, jobs []storage.JobSummary, total int) *Page {
	pages := 0
	if q.PageSize > 0 {
		pages = (total + q.PageSize - 1) / q.PageSize
	}
	return &Page{Jobs: jobs, Total: total, Page: q.Page, PageSize: q.PageSize, TotalPages: pages}
}
