package agent

import "testing"

func TestRegisterBuiltinsCoversToolTable(t *testing.T) {
	registry := NewToolRegistry()
	RegisterBuiltins(registry, t.TempDir(), 1<<20)

	want := []string{
		"read_file", "write_file", "edit_file", "apply_patch",
		"list_directory", "glob", "search_in_files",
		"create_directory", "delete_file", "bash", "process",
	}
	for _, name := range want {
		if _, ok := registry.Lookup(name); !ok {
			t.Errorf("expected builtin tool %q to be registered", name)
		}
	}
}
