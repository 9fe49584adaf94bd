package classify

import (
	"reflect"
	"testing"
)

func TestIsGoogleDriveURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://docs.google.com", false},
		{"https://docs.google.com/", false},
		{"https://docs.google.com/spreadsheets/d/ABC/edit", true},
		{"https://drive.google.com/file/d/123/view?usp=sharing", true},
		{"https://sheets.google.com/x", true},
		{"https://forms.google.com/x", true},
		{"https://slides.google.com/x", true},
		{"https://DOCS.Google.com/document/d/1", true},
		{"https://docs.google.com:443/document/d/1", true},
		{"https://mail.google.com/mail/u/0", false},
		{"https://docs.google.com.evil.example/doc", false},
		{"https://evil.example/docs.google.com/doc", false},
		{"not a url", false},
		{"", false},
		{"http://[::1", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsGoogleDriveURL(tt.url); got != tt.want {
				t.Errorf("IsGoogleDriveURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestIsDropboxURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://dropbox.com", false},
		{"https://www.dropbox.com/home", false},
		{"https://www.dropbox.com/scl/fi/XYZ/file.paper?dl=0", true},
		{"https://www.dropbox.com/s/abc/photo.jpg?dl=0", true},
		{"https://dropbox.com/s/abc", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsDropboxURL(tt.url); got != tt.want {
				t.Errorf("IsDropboxURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestProvider(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.dropbox.com/s/abc", ProviderDropbox},
		{"https://drive.google.com/file/d/1", ProviderGoogleDrive},
		{"https://example.com/s/abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Provider(tt.url); got != tt.want {
				t.Errorf("Provider(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestFileURLs(t *testing.T) {
	in := []string{
		"https://example.com/a",
		"https://www.dropbox.com/s/abc",
		"https://docs.google.com",
		"https://docs.google.com/document/d/1",
		"https://www.dropbox.com/s/abc",
	}
	want := []string{
		"https://www.dropbox.com/s/abc",
		"https://docs.google.com/document/d/1",
		"https://www.dropbox.com/s/abc",
	}
	if got := FileURLs(in); !reflect.DeepEqual(got, want) {
		t.Errorf("FileURLs() = %v, want %v", got, want)
	}
	if got := FileURLs(nil); len(got) != 0 {
		t.Errorf("FileURLs(nil) = %v, want empty", got)
	}
}
