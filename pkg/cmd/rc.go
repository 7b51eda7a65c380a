package cmd

import (
	"errors"
	"fmt"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/rcfile"
)

// ErrInvalidConfiguration marks rc files that could not be read or parsed.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// loadRC loads the rc file at path, or discovers one by walking up from
// the working directory when path is empty. The returned path is empty
// when no file was found.
func loadRC(path string) (*rcfile.RC, string, error) {
	if path != "" {
		rc, err := rcfile.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		return rc, path, nil
	}
	rc, found, err := rcfile.Discover(".")
	if err != nil {
		return nil, found, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return rc, found, nil
}

// logRC records which rc file a command is running under, if any.
func logRC(path string) {
	if path != "" {
		log.Debug().Str("path", path).Msg("loaded configuration file")
	}
}
