package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"
)

// fakeMail is an in-memory out.MailClient.
type fakeMail struct {
	mu          sync.Mutex
	pages       map[string]*out.MessagePage // keyed by page token, "" is the first page
	listErr     map[string]error
	messages    map[string]*domain.Message
	getErr      map[string]error
	attachments map[string][]byte
	listCalls   []string
}

func (f *fakeMail) ListMessageIDs(_ context.Context, token string) (*out.MessagePage, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, token)
	f.mu.Unlock()
	if err := f.listErr[token]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[token]; ok {
		return p, nil
	}
	return &out.MessagePage{}, nil
}

func (f *fakeMail) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	return f.messages[id], nil
}

func (f *fakeMail) GetAttachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	b, ok := f.attachments[attachmentID]
	if !ok {
		return nil, errors.New("attachment not found")
	}
	return b, nil
}

// fakeStatus answers probes from a fixed table.
type fakeStatus struct {
	statuses map[string]int
	errs     map[string]error
}

func (f *fakeStatus) Status(_ context.Context, u string) (int, error) {
	if err := f.errs[u]; err != nil {
		return 0, err
	}
	if s, ok := f.statuses[u]; ok {
		return s, nil
	}
	return 404, nil
}

func textMessage(id, body string) *domain.Message {
	return &domain.Message{
		ID: id,
		Payload: &domain.Payload{
			MimeType: "multipart/alternative",
			Parts: []*domain.Payload{{
				MimeType: "text/plain",
				Body:     &domain.PartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
			}},
		},
		SizeEstimate: 4096,
		InternalDate: 1700000000000,
		Snippet:      body,
	}
}
