package proptable

import "testing"

func TestSetAndGetInMemory(t *testing.T) {
	tbl := New()
	tbl.Set(1, Property{Key: "device.name", Value: "Scarlett"}, false)
	p, ok := tbl.Get(1, "device.name")
	if !ok || p.Value != "Scarlett" {
		t.Fatalf("Get = %+v, ok=%v", p, ok)
	}
}

func TestRemoveDeletesProperty(t *testing.T) {
	tbl := New()
	tbl.Set(1, Property{Key: "k", Value: "v"}, false)
	tbl.Remove(1, "k")
	if _, ok := tbl.Get(1, "k"); ok {
		t.Fatalf("expected property removed")
	}
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/props.db"

	tbl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tbl.Set(7, Property{Key: "pretty-name", Value: "Bass Input"}, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tbl.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	p, ok := reopened.Get(7, "pretty-name")
	if !ok || p.Value != "Bass Input" {
		t.Fatalf("expected persisted property to survive reopen, got %+v ok=%v", p, ok)
	}
}

func TestAllReturnsSortedByKey(t *testing.T) {
	tbl := New()
	tbl.Set(1, Property{Key: "zzz", Value: "1"}, false)
	tbl.Set(1, Property{Key: "aaa", Value: "2"}, false)
	all := tbl.All(1)
	if len(all) != 2 || all[0].Key != "aaa" || all[1].Key != "zzz" {
		t.Fatalf("expected sorted keys, got %+v", all)
	}
}
