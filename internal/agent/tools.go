package agent

// MutatingTools names the built-in tools withheld in plan mode because
// they change workspace or process state rather than merely reading it.
var MutatingTools = map[string]bool{
	"write_file":       true,
	"edit_file":        true,
	"apply_patch":      true,
	"create_directory": true,
	"delete_file":      true,
	"bash":             true,
	"exec":             true,
	"process":          true,
}
