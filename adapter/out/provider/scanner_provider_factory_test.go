package provider

import (
	"context"
	"errors"
	"testing"

	"scanner_server/adapter/out/mbox"
	"scanner_server/core/domain"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

func TestNormalizeSource(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", SourceGmail},
		{"Gmail", SourceGmail},
		{"google", SourceGmail},
		{" MBOX ", SourceMbox},
		{"imap", "imap"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeSource(tt.in); got != tt.want {
				t.Errorf("NormalizeSource(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFactory_CreateClient(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown source", func(t *testing.T) {
		f := NewFactory(FactoryConfig{}, nil, zerolog.Nop())
		if _, err := f.CreateClient(ctx, "imap"); !errors.Is(err, domain.ErrUnknownSource) {
			t.Errorf("err = %v, want ErrUnknownSource", err)
		}
	})

	t.Run("mbox without path", func(t *testing.T) {
		f := NewFactory(FactoryConfig{}, nil, zerolog.Nop())
		if _, err := f.CreateClient(ctx, SourceMbox); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("mbox", func(t *testing.T) {
		f := NewFactory(FactoryConfig{Mbox: mbox.Config{Path: "inbox.mbox"}}, nil, zerolog.Nop())
		client, err := f.CreateClient(ctx, SourceMbox)
		if err != nil {
			t.Fatalf("CreateClient: %v", err)
		}
		if _, ok := client.(*mbox.Adapter); !ok {
			t.Errorf("client = %T", client)
		}
	})

	t.Run("gmail token source error", func(t *testing.T) {
		f := NewFactory(FactoryConfig{}, func(context.Context) (oauth2.TokenSource, error) {
			return nil, domain.ErrNotAuthenticated
		}, zerolog.Nop())
		if _, err := f.CreateClient(ctx, SourceGmail); !errors.Is(err, domain.ErrNotAuthenticated) {
			t.Errorf("err = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("gmail", func(t *testing.T) {
		f := NewFactory(FactoryConfig{}, func(context.Context) (oauth2.TokenSource, error) {
			return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), nil
		}, zerolog.Nop())
		client, err := f.CreateClient(ctx, "google")
		if err != nil {
			t.Fatalf("CreateClient: %v", err)
		}
		if _, ok := client.(*GmailAdapter); !ok {
			t.Errorf("client = %T", client)
		}
	})
}
