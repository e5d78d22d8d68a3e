package cli

import (
	"io"
	"os"

	"golang.org/x/term"
)

// useColor reports whether escape codes may be written to w.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return enableVirtualTerminal(f)
}
