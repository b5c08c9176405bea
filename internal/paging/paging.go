package paging

import (
	"net/url"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Params struct {
	Page    int
	PerPage int
}

// FromQuery reads page and per_page, falling back to defaults on bad input.
func FromQuery(q url.Values) Params {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	per, err := strconv.Atoi(q.Get("per_page"))
	if err != nil || per < 1 {
		per = DefaultPerPage
	}
	return Params{Page: page, PerPage: per}.normalize()
}

func (p Params) normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Params) Limit() int { return p.normalize().PerPage }

func (p Params) Offset() int {
	n := p.normalize()
	return (n.Page - 1) * n.PerPage
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPage[T any](items []T, p Params, total int) Page[T] {
	n := p.normalize()
	pages := (total + n.PerPage - 1) / n.PerPage
	if pages == 0 {
		pages = 1
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: n.Page, PerPage: n.PerPage, Total: total, TotalPages: pages}
}
