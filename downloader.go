//go:build !NODOWNLOAD

package kbner

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/go-huggingface/hub"

	"github.com/knights-analytics/kbner/util/fileutil"
)

// DownloadOptions is a struct of options that can be passed to
// DownloadEncoder.
type DownloadOptions struct {
	AuthToken             string
	OnnxFilePath          string
	Branch                string
	MaxRetries            int
	RetryInterval         int
	ConcurrentConnections int
	Verbose               bool
}

// NewDownloadOptions creates a DownloadOptions struct with default values.
// Override the values to specify different download options.
func NewDownloadOptions() DownloadOptions {
	d := DownloadOptions{}
	d.Branch = "main"
	d.MaxRetries = 5
	d.RetryInterval = 5
	d.ConcurrentConnections = 5
	return d
}

// DownloadEncoder downloads an encoder model directly from huggingface.
// Before downloading, the repository is validated to hold an .onnx export
// and a vocab.txt token vocabulary; evaluation works only with onnx encoders
// and wordpiece vocabularies.
func DownloadEncoder(modelName string, destination string, options DownloadOptions) (string, error) {
	modelP := modelName
	if strings.Contains(modelP, ":") {
		modelP = strings.Split(modelName, ":")[0]
	}
	modelPath := path.Join(destination, strings.ReplaceAll(modelP, "/", "_"))

	if exists, err := fileutil.FileExists(modelPath); err != nil {
		return "", err
	} else if exists {
		if options.Verbose {
			fmt.Printf("%s already exists, skipping download\n", modelPath)
		}
		return modelPath, nil
	}

	repo := hub.New(modelName)
	if options.AuthToken != "" {
		repo = repo.WithAuth(options.AuthToken)
	}
	if options.ConcurrentConnections > 0 {
		repo.MaxParallelDownload = options.ConcurrentConnections
	}
	if options.Verbose {
		repo.Verbosity = 1
		repo.WithProgressBar(true)
	} else {
		repo.Verbosity = 0
		repo.WithProgressBar(false)
	}
	if options.Branch != "" {
		repo.WithRevision(options.Branch)
	}

	downloadFiles, err := validateEncoderRepo(repo, options)
	if err != nil {
		return "", err
	}

	for i := 0; i < options.MaxRetries; i++ {
		downloadPaths, downloadErr := repo.DownloadFiles(downloadFiles...)
		if downloadErr != nil {
			if options.Verbose {
				fmt.Printf("Warning: attempt %d / %d failed, error: %s\n", i+1, options.MaxRetries, downloadErr)
			}
			time.Sleep(time.Duration(options.RetryInterval) * time.Second)
			continue
		}

		for j, downloadPath := range downloadPaths {
			truePath, symErr := filepath.EvalSymlinks(downloadPath)
			if symErr != nil {
				return "", symErr
			}
			copyErr := fileutil.CopyFile(truePath, fileutil.PathJoinSafe(modelPath, path.Base(downloadFiles[j])))
			if copyErr != nil {
				return "", copyErr
			}
		}

		if options.Verbose {
			fmt.Printf("\nDownload of %s completed successfully\n", modelName)
		}
		return modelPath, nil
	}

	return "", fmt.Errorf("failed to download %s after %d attempts", modelName, options.MaxRetries)
}

func validateEncoderRepo(repo *hub.Repo, options DownloadOptions) ([]string, error) {
	for i := 0; i < options.MaxRetries; i++ {
		err := repo.DownloadInfo(false)
		if err == nil {
			break
		}
		if options.Verbose {
			fmt.Printf("Warning: list repo attempt %d / %d failed, error: %s\n", i+1, options.MaxRetries, err)
		}
		if i+1 == options.MaxRetries {
			return nil, err
		}
		time.Sleep(time.Duration(options.RetryInterval) * time.Second)
	}

	vocabPath := ""
	onnxPath := ""
	var toDownload []string
	var allOnnx []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return nil, err
		}

		baseFileName := filepath.Base(fileName)
		switch {
		case baseFileName == "vocab.txt":
			vocabPath = fileName
		case baseFileName == "config.json":
			toDownload = append(toDownload, fileName)
		case filepath.Ext(baseFileName) == ".onnx":
			if options.OnnxFilePath != "" {
				if fileName == options.OnnxFilePath {
					onnxPath = fileName
				}
			} else {
				allOnnx = append(allOnnx, fileName)
			}
		}
	}

	if options.OnnxFilePath == "" {
		switch len(allOnnx) {
		case 0:
		case 1:
			onnxPath = allOnnx[0]
		default:
			return nil, fmt.Errorf("model repository has %d onnx exports, disambiguate with OnnxFilePath", len(allOnnx))
		}
	}
	if onnxPath == "" {
		return nil, fmt.Errorf("model repository has no onnx export")
	}
	if vocabPath == "" {
		return nil, fmt.Errorf("model repository has no vocab.txt")
	}
	return append(toDownload, onnxPath, vocabPath), nil
}
