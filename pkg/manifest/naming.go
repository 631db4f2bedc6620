package manifest

import (
	"fmt"
	"log/slog"
	"strings"
)

// namer assigns unique output file names within a run. Comparison is
// case-insensitive so that generated files stay distinct on filesystems
// that fold case.
type namer struct {
	used map[string]bool
	log  *slog.Logger
}

func newNamer(log *slog.Logger) *namer {
	return &namer{used: map[string]bool{}, log: log}
}

// resolve returns a name not yet handed out, appending _1, _2, ... before
// the extension until the candidate is free. An exact repeat of an earlier
// name is logged, since it usually means duplicated CSV rows.
func (n *namer) resolve(name string) string {
	if n.used[strings.ToLower(name)] {
		n.log.Warn("duplicate output name, likely repeated rows", "name", name)
	}
	count := 1
	for n.used[strings.ToLower(name)] {
		parts := strings.Split(name, ".")
		if len(parts) > 1 {
			parts[len(parts)-2] = fmt.Sprintf("%s_%d", parts[len(parts)-2], count)
		} else {
			parts[0] = fmt.Sprintf("%s_%d", parts[0], count)
		}
		name = strings.Join(parts, ".")
		count++
	}
	n.used[strings.ToLower(name)] = true
	return name
}

// sanitizeName replaces path separators so a CSV-supplied file name cannot
// escape the output directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}
