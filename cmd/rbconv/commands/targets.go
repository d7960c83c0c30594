package commands

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// target is one source to convert. Stdin targets write to stdout.
type target struct {
	path   string
	source string
	stdout bool
}

func collectTargets(args []string, stdin io.Reader) ([]target, error) {
	var targets []target

	for _, arg := range args {
		if arg == "-" {
			source, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}

			targets = append(targets, target{path: "stdin.rb", source: string(source), stdout: true})

			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}

		if info.IsDir() {
			walked, walkErr := walkRuby(arg)
			if walkErr != nil {
				return nil, walkErr
			}

			targets = append(targets, walked...)

			continue
		}

		tgt, readErr := readTarget(arg)
		if readErr != nil {
			return nil, readErr
		}

		targets = append(targets, tgt)
	}

	if len(targets) == 0 {
		return nil, ErrNoInputs
	}

	return targets, nil
}

// walkRuby collects Ruby sources under root, identified by content-aware
// language detection rather than extension alone.
func walkRuby(root string) ([]target, error) {
	var targets []target

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			if path != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}

			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}

		if enry.GetLanguage(entry.Name(), data) != "Ruby" {
			return nil
		}

		targets = append(targets, target{path: path, source: string(data)})

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}

	return targets, nil
}

func readTarget(path string) (target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return target{}, fmt.Errorf("read %s: %w", path, err)
	}

	return target{path: path, source: string(data)}, nil
}
