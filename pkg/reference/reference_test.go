package reference

import (
	"reflect"
	"testing"
)

func TestCompute_LocalOnly(t *testing.T) {
	set, err := Compute("self21", "latest", "a1b2c3d", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantLocal := []string{"self21:latest", "self21:a1b2c3d"}
	if !reflect.DeepEqual(set.Local, wantLocal) {
		t.Errorf("Local = %v, want %v", set.Local, wantLocal)
	}
	if len(set.Remote) != 0 {
		t.Errorf("Remote = %v, want empty without registry", set.Remote)
	}
	if set.Primary() != "self21:latest" {
		t.Errorf("Primary() = %q", set.Primary())
	}
}

func TestCompute_WithRegistry(t *testing.T) {
	set, err := Compute("self21", "latest", "a1b2c3d", "registry.example/self21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantRemote := []string{"registry.example/self21:latest", "registry.example/self21:a1b2c3d"}
	if !reflect.DeepEqual(set.Remote, wantRemote) {
		t.Errorf("Remote = %v, want %v", set.Remote, wantRemote)
	}
	if got := len(set.All()); got != 4 {
		t.Errorf("All() has %d refs, want 4", got)
	}
}

func TestCompute_InvalidTag(t *testing.T) {
	_, err := Compute("self21", "not a tag", "a1b2c3d", "")
	if err == nil {
		t.Fatal("expected error for invalid tag")
	}
}

func TestCompute_InvalidRegistry(t *testing.T) {
	_, err := Compute("self21", "latest", "a1b2c3d", "registry .example/self21")
	if err == nil {
		t.Fatal("expected error for invalid registry path")
	}
}
