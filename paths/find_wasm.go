//go:build js

package paths

import (
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

// findImp pretends that the file passed is available next to the page that
// loaded the client, and returns its relative URL.
//
// TODO(ivucica): Ask the service worker's cache whether the file exists.
func findImp(fileName string) string {
	return fileName
}

// openImp fetches the file over HTTP, relative to the page.
func openImp(fileName string) (io.ReadCloser, error) {
	response, err := http.Get(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "paths.Open(%q) on wasm: failed to open", fileName)
	}
	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		e := os.ErrInvalid
		if response.StatusCode == http.StatusNotFound {
			e = os.ErrNotExist
		}
		return nil, errors.Wrapf(e, "paths.Open(%q) on wasm: http response.StatusCode=%v, want 200", fileName, response.StatusCode)
	}
	return response.Body, nil
}
