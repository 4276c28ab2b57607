package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// ErrBackendNotFound is returned when no candidate directory holds the
// backend sources.
var ErrBackendNotFound = errors.New("backend directory not found")

// marker identifies a backend checkout.
var marker = filepath.Join("app", "main.py")

// BackendCandidates lists directories that may hold the backend, in
// priority order: the explicit override, the packaged resources next to
// the executable, source-tree relative paths and finally the working
// directory.
func BackendCandidates(override string) []string {
	var dirs []string
	if override != "" {
		dirs = append(dirs, override)
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		if runtime.GOOS == "darwin" {
			dirs = append(dirs, filepath.Join(exeDir, "..", "Resources", "backend"))
		}
		dirs = append(dirs,
			filepath.Join(exeDir, "resources", "backend"),
			filepath.Join(exeDir, "..", "backend"),
			filepath.Join(exeDir, "..", "..", "backend"),
		)
	}

	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs,
			filepath.Join(cwd, "apps", "backend"),
			filepath.Join(cwd, "backend"),
		)
	}
	return dirs
}

// LocateBackend returns the first candidate containing app/main.py.
func LocateBackend(candidates []string) (string, error) {
	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return filepath.Clean(dir), nil
		}
	}
	return "", ErrBackendNotFound
}

// Interpreter is a way to launch Python.
type Interpreter struct {
	Path string
	Args []string // prepended before the module arguments
}

// InterpreterCandidates lists interpreters to try, in order: the explicit
// override, the backend's virtualenv, then whatever is on PATH. The "py"
// launcher is asked for Python 3.
func InterpreterCandidates(override, backendDir string) []Interpreter {
	var out []Interpreter
	if override != "" {
		out = append(out, Interpreter{Path: override})
	}
	if backendDir != "" {
		out = append(out,
			Interpreter{Path: filepath.Join(backendDir, ".venv", "Scripts", "python.exe")},
			Interpreter{Path: filepath.Join(backendDir, ".venv", "bin", "python")},
		)
	}
	out = append(out,
		Interpreter{Path: "python3"},
		Interpreter{Path: "python"},
		Interpreter{Path: "py", Args: []string{"-3"}},
	)
	return out
}
