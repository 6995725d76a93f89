package nodename_test

import (
	"strings"
	"testing"

	"datanode/internal/nodename"
)

func TestGenerateReturnsTwoHyphenatedWords(t *testing.T) {
	name := nodename.Generate()
	if name == "" {
		t.Fatal("expected non-empty nickname")
	}
	if parts := strings.Split(name, "-"); len(parts) != 2 {
		t.Errorf("expected two hyphen-joined words, got %q", name)
	}
}
