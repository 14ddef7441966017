package fileutil

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	_ "github.com/viant/afsc/s3"
)

var FileSystem = afs.New()

func FileExists(filename string) (bool, error) {
	exists, err := FileSystem.Exists(context.Background(), filename)
	return exists, err
}

// OpenFile opens filename for reading. The path may be a local path or any
// scheme supported by afs (e.g. s3://).
func OpenFile(filename string) (io.ReadCloser, error) {
	return FileSystem.OpenURL(context.Background(), filename)
}

func ReadFileBytes(filename string) ([]byte, error) {
	file, err := FileSystem.OpenURL(context.Background(), filename)
	if err != nil {
		return nil, err
	}
	defer CloseFile(file)

	outBytes, readErr := io.ReadAll(file)
	if readErr != nil {
		return nil, readErr
	}
	return outBytes, nil
}

func CloseFile(file io.Closer) error {
	return file.Close()
}

func WriteFileBytes(filename string, data []byte) error {
	return FileSystem.Upload(context.Background(), filename, 0o644, bytes.NewReader(data))
}

// CopyFile copies a file between any two afs supported locations.
func CopyFile(from, to string) error {
	return FileSystem.Copy(context.Background(), from, to)
}

func GetPathType(path string) string {
	if strings.HasPrefix(path, "s3://") {
		return "S3"
	}
	return "os"
}

// PathJoinSafe wrapper around filepath.Join to ensure that paths are correctly constructed
// if the path is a normal OS path, just use filepath.Join
// if the path is S3, trim any trailing slashes and construct it manually from the components
// so that double slashes (e.g. s3://) are preserved.
func PathJoinSafe(elem ...string) string {
	var path string

	switch GetPathType(elem[0]) {
	case "S3":
		basePath := strings.TrimSuffix(elem[0], "/")
		path = basePath + string(filepath.Separator) + filepath.Join(elem[1:]...)
	default:
		path = filepath.Join(elem...)
	}
	return path
}
