package scan

import (
	"context"
	"errors"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"
)

var errTokenLoop = errors.New("provider returned the same page token twice")

// PageIterator walks a message id listing one page at a time.
// It is finite and cannot be restarted.
//
//	it := NewPageIterator(client)
//	for it.Next(ctx) {
//		ids = append(ids, it.Page()...)
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	client  out.MailClient
	token   string
	page    []string
	started bool
	done    bool
	err     error
}

// NewPageIterator creates an iterator positioned before the first page.
func NewPageIterator(client out.MailClient) *PageIterator {
	return &PageIterator{client: client}
}

// Next fetches the next page. It returns false when the listing is
// exhausted or a call failed; Err distinguishes the two.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.done || (it.started && it.token == "") {
		it.done = true
		it.page = nil
		return false
	}

	requested := it.token
	page, err := it.client.ListMessageIDs(ctx, requested)
	if err != nil {
		it.fail(requested, err)
		return false
	}
	it.started = true
	if page == nil {
		it.page, it.token = nil, ""
		return true
	}
	if page.NextPageToken != "" && page.NextPageToken == requested {
		it.fail(requested, errTokenLoop)
		return false
	}
	it.page, it.token = page.IDs, page.NextPageToken
	return true
}

func (it *PageIterator) fail(token string, err error) {
	it.err = &domain.RetrievalError{PageToken: token, Err: err}
	it.done = true
	it.page = nil
}

// Page returns the ids of the current page.
func (it *PageIterator) Page() []string { return it.page }

// Token returns the continuation token following the current page.
func (it *PageIterator) Token() string { return it.token }

// Err returns the *domain.RetrievalError that stopped iteration, if any.
func (it *PageIterator) Err() error { return it.err }

// ListAllMessageIDs drains every page. An empty mailbox is not an error.
func ListAllMessageIDs(ctx context.Context, client out.MailClient) ([]string, error) {
	var ids []string
	it := NewPageIterator(client)
	for it.Next(ctx) {
		ids = append(ids, it.Page()...)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
