package mirror

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/me/seqflow/pkg/model"
)

// FileFetcher copies file:// locators from a shared filesystem.
type FileFetcher struct{}

// NewFileFetcher creates a FileFetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

// Fetch copies the file behind a file:// locator to destPath.
func (f *FileFetcher) Fetch(ctx context.Context, locator string, destPath string) error {
	src := strings.TrimPrefix(locator, "file://")

	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewNotFoundError("remote file", locator)
		}
		return &FetchError{Locator: locator, Transient: true, Err: err}
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return &FetchError{Locator: locator, Transient: true, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return &FetchError{Locator: locator, Transient: true, Err: err}
	}
	return nil
}
