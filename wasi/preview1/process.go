package preview1

import "strings"

// Process is the guest-visible process context of one bridge: the argument
// vector, an environment the shell extensions may edit, and the exit status.
type Process struct {
	args     []string
	env      []string
	exitCode uint32
	exited   bool
}

// NewProcess copies args and env ("KEY=VALUE" entries) into a new context.
func NewProcess(args, env []string) *Process {
	return &Process{
		args: append([]string(nil), args...),
		env:  append([]string(nil), env...),
	}
}

// Args returns the argument vector.
func (p *Process) Args() []string {
	return p.args
}

// Environ returns the environment in "KEY=VALUE" form.
func (p *Process) Environ() []string {
	return p.env
}

func (p *Process) index(name string) int {
	for i, kv := range p.env {
		if k, _, ok := strings.Cut(kv, "="); ok && k == name {
			return i
		}
	}
	return -1
}

// Getenv returns the value of name.
func (p *Process) Getenv(name string) (string, bool) {
	i := p.index(name)
	if i < 0 {
		return "", false
	}
	_, v, _ := strings.Cut(p.env[i], "=")
	return v, true
}

// Setenv sets name to value. An existing entry is kept unless overwrite is set.
func (p *Process) Setenv(name, value string, overwrite bool) {
	kv := name + "=" + value
	i := p.index(name)
	switch {
	case i < 0:
		p.env = append(p.env, kv)
	case overwrite:
		p.env[i] = kv
	}
}

// Unsetenv removes name.
func (p *Process) Unsetenv(name string) {
	if i := p.index(name); i >= 0 {
		p.env = append(p.env[:i], p.env[i+1:]...)
	}
}

// Exit records the guest's exit code.
func (p *Process) Exit(code uint32) {
	p.exitCode = code
	p.exited = true
}

// ExitCode returns the recorded code and whether the guest exited.
func (p *Process) ExitCode() (uint32, bool) {
	return p.exitCode, p.exited
}

// ValidEnvName reports whether name can be stored as an environment key.
func ValidEnvName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "=\x00")
}
