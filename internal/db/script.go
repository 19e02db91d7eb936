package db

// Script is a Lua script executed atomically by the store.
// Scripts are declared once at package level by the repositories that own them.
type Script struct {
	name   string
	source string
}

// NewScript declares a named Lua script.
func NewScript(name, source string) *Script {
	return &Script{name: name, source: source}
}

// Name returns the script name used in logs and errors.
func (s *Script) Name() string { return s.name }

// Source returns the Lua source.
func (s *Script) Source() string { return s.source }
