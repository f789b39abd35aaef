package cli

import (
	"bytes"
	"errors"
	"testing"
)

func TestPromptPassword(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) { return []byte("s3cret\r\n"), nil }

	var out bytes.Buffer
	got, err := PromptPassword(&out, "Password: ")
	if err != nil || got != "s3cret" {
		t.Fatalf("got %q, err=%v", got, err)
	}
	if out.String() != "Password: \n" {
		t.Fatalf("unexpected prompt output %q", out.String())
	}
}

func TestPromptPassword_Error(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return nil, errors.New("boom")
	}
	var out bytes.Buffer
	if _, err := PromptPassword(&out, "Password: "); err == nil {
		t.Fatal("expected error")
	}
}
