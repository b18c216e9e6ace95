package ui

import "testing"

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"AIzaSyD-1234567890abcdef", "AIza...cdef"},
		{"short", "****"},
		{"12345678", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestMimeTypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"photo.png", "image/png"},
		{"photo.PNG", "image/png"},
		{"pic.jpg", "image/jpeg"},
		{"pic.jpeg", "image/jpeg"},
		{"anim.gif", "image/gif"},
		{"modern.webp", "image/webp"},
		{"document.pdf", ""},
		{"noext", ""},
	}
	for _, tt := range tests {
		if got := mimeTypeForPath(tt.path); got != tt.want {
			t.Errorf("mimeTypeForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
