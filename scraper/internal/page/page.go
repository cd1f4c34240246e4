// CLAUDE:SUMMARY Narrow page-handle capability consumed by extraction strategies: navigate, query, read text/attribute, wait.
// Package page defines the browser capability the extraction strategies
// depend on, with two implementations: Static (plain HTTP + goquery) and
// Rod (a Chrome tab driven through go-rod).
package page

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Wait when the selector never matched.
var ErrNotFound = errors.New("page: selector not found")

// ErrNoDocument is returned when a page is queried before any navigation.
var ErrNoDocument = errors.New("page: no document loaded")

// Page is a loaded document that can be navigated and queried.
//
// QuerySelector returns (nil, nil) when nothing matches; an error means the
// lookup itself failed (closed tab, protocol error).
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	Wait(ctx context.Context, selector string) error
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Close() error
}

// Element is a node of a loaded document. Lookups are scoped to the node.
type Element interface {
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	HTML(ctx context.Context) (string, error)
}

// Opener hands out a fresh page for each run.
type Opener interface {
	Open(ctx context.Context) (Page, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Page, error)

func (f OpenerFunc) Open(ctx context.Context) (Page, error) { return f(ctx) }
