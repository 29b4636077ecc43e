package paths

import (
	"io"

	"github.com/golang/glog"
)

// EnvHome names a directory searched before all others.
const EnvHome = "ROCLIENT_HOME"

// Find locates the passed file shortname and returns an absolute or relative
// path to find it at, or an empty string if it is nowhere to be found.
//
// For example, for "roclient.toml" it may return
// "/home/user/.config/roclient/roclient.toml".
func Find(fileName string) string {
	path := findImp(fileName)
	glog.V(1).Infof("paths.Find(%q)=%q", fileName, path)
	return path
}

// Open locates the passed file in the same locations that Find would look, and
// opens it. If Find returns an empty string, an error is returned.
func Open(fileName string) (io.ReadCloser, error) {
	return openImp(fileName)
}
