package utils

import "fmt"

// Length-aware page envelope: data plus links and meta describing position
// and total size.

type PageLinks struct {
	First string  `json:"first"`
	Last  string  `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

type PageMeta struct {
	CurrentPage int    `json:"current_page"`
	From        *int   `json:"from"`
	LastPage    int    `json:"last_page"`
	Path        string `json:"path"`
	PerPage     int    `json:"per_page"`
	To          *int   `json:"to"`
	Total       int    `json:"total"`
}

type Page[T any] struct {
	Data  []T       `json:"data"`
	Links PageLinks `json:"links"`
	Meta  PageMeta  `json:"meta"`
}

func Paginate[T any](items []T, total, page, perPage int, path string) Page[T] {
	if perPage < 1 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}

	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	pageURL := func(p int) string {
		return fmt.Sprintf("%s?page=%d", path, p)
	}

	links := PageLinks{
		First: pageURL(1),
		Last:  pageURL(lastPage),
	}

	if page > 1 {
		prev := pageURL(page - 1)
		links.Prev = &prev
	}
	if page < lastPage {
		next := pageURL(page + 1)
		links.Next = &next
	}

	meta := PageMeta{
		CurrentPage: page,
		LastPage:    lastPage,
		Path:        path,
		PerPage:     perPage,
		Total:       total,
	}

	// from/to are null on an empty page, mirroring the usual paginator shape
	if len(items) > 0 {
		from := (page-1)*perPage + 1
		to := from + len(items) - 1
		meta.From = &from
		meta.To = &to
	}

	if items == nil {
		items = []T{}
	}

	return Page[T]{Data: items, Links: links, Meta: meta}
}
