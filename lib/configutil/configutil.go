package configutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// ReadConfig reads `name` plus an optional `<name>.local.<ext>` file next
// to it, with the local file merged on top. Checked-in configs keep the
// shared defaults, the local file carries per-machine secrets. Returns
// os.ErrNotExist when neither file is present.
func ReadConfig[T any](name string) (T, error) {
	var out T

	found, err := readLayer(name, &out)
	if err != nil {
		return out, err
	}

	stem, ext := splitExt(filepath.Base(name))
	localPath := filepath.Join(filepath.Dir(name), stem+".local."+ext)

	var local T
	foundLocal, err := readLayer(localPath, &local)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, local, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localPath)
	}

	if !found && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// readLayer parses one json5 file into out. Missing and empty files
// report found=false without an error.
func readLayer[T any](path string, out *T) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	err = json5.Unmarshal(raw, out)
	if err != nil {
		return false, err
	}
	return true, nil
}

func splitExt(base string) (string, string) {
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return base, ""
	}
	return base[:i], base[i+1:]
}

// ReadRecursively walks from the cwd up to the filesystem root looking
// for a config matching the name, reading the first one found.
func ReadRecursively[T any](name string) (T, error) {
	var out T

	dir, err := os.Getwd()
	if err != nil {
		return out, err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(dir, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return out, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return out, os.ErrNotExist
		}
		dir = parent
	}
}
