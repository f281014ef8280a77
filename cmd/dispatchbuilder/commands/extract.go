package commands

import (
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/dispatchbuilder/internal/dispatch"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// ExtractCmd implements the 'extract' command.
type ExtractCmd struct {
	File string `arg:"" optional:"" help:"HTML response file, or - for stdin" default:"-"`
}

func (e *ExtractCmd) Run(_ *Global, _ *CLI) error {
	var (
		body []byte
		err  error
	)
	if e.File == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(e.File)
	}
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to read response").
			WithContext("path", e.File).
			Build()
	}

	id, err := dispatch.ExtractID(body)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}
