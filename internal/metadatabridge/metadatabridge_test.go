package metadatabridge

import (
	"testing"

	"jackshim/internal/proptable"
)

func TestSetAndReadDefaultSink(t *testing.T) {
	tbl := proptable.New()
	b := New(tbl)

	if err := b.SetDefaultSink("alsa_output.pci-0000_00_1f.3.analog-stereo"); err != nil {
		t.Fatalf("SetDefaultSink: %v", err)
	}
	name, ok := b.DefaultSink()
	if !ok || name != "alsa_output.pci-0000_00_1f.3.analog-stereo" {
		t.Fatalf("DefaultSink() = %q, ok=%v", name, ok)
	}
}

func TestDefaultSourceAbsentByDefault(t *testing.T) {
	tbl := proptable.New()
	b := New(tbl)
	if _, ok := b.DefaultSource(); ok {
		t.Fatalf("expected no default source metadata published yet")
	}
}

func TestMetadataStoredAsJSONPayload(t *testing.T) {
	tbl := proptable.New()
	b := New(tbl)
	b.SetDefaultSource("mic0")

	p, ok := tbl.Get(GlobalSubject, DefaultSourceKey)
	if !ok {
		t.Fatalf("expected raw property present in table")
	}
	if p.Value != `{"name":"mic0"}` {
		t.Fatalf("Value = %q, want JSON payload", p.Value)
	}
}
