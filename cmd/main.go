package main

import (
	"fmt"
	"os"
	"path"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/knights-analytics/kbner"
	"github.com/knights-analytics/kbner/backends"
	"github.com/knights-analytics/kbner/dataset"
	"github.com/knights-analytics/kbner/heads"
	"github.com/knights-analytics/kbner/labels"
	"github.com/knights-analytics/kbner/util/fileutil"
)

var trainPath string
var evalPath string
var vocabPath string
var encoderPath string
var checkpointPaths cli.StringSlice
var backend string
var sharedLibraryPath string
var batchSize int
var seqLength int
var tieBreakHead int
var shuffleSeed int64
var shuffle bool
var concurrentHeads bool
var jsonOutput bool
var outputPath string

var downloadModelName string
var downloadDestination string
var downloadOnnxFilePath string
var downloadAuthToken string
var downloadVerbose bool

var evaluateCommand = &cli.Command{
	Name:  "evaluate",
	Usage: "Evaluate an ensemble of sequence-labeling heads over a labeled dataset",
	Description: `Evaluate loads a tag vocabulary from the training file, reads the evaluation
dataset, runs every checkpoint's head over identical batches, merges the
per-token predictions by majority vote and reports label-level and
entity-level precision, recall and F1.

Each checkpoint declares its own architecture tag (for example "gru-crf" or
"smoothed-softmax"); the head is configured from that tag, so mismatched
parameters fail at load time rather than corrupting the evaluation.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "train",
			Usage:       "Path to the training file the tag vocabulary is derived from",
			Destination: &trainPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "eval",
			Usage:       "Path to the evaluation dataset",
			Aliases:     []string{"i"},
			Destination: &evalPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "Path to the encoder's vocab.txt",
			Destination: &vocabPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "encoder",
			Usage:       "Path to the encoder .onnx export shared by all heads",
			Aliases:     []string{"m"},
			Destination: &encoderPath,
			Required:    true,
		},
		&cli.StringSliceFlag{
			Name:        "checkpoint",
			Usage:       "Path to a head checkpoint, repeat once per ensemble member",
			Aliases:     []string{"c"},
			Destination: &checkpointPaths,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Inference backend: go or ort",
			Destination: &backend,
			Value:       "go",
		},
		&cli.StringFlag{
			Name:        "onnxruntimeSharedLibrary",
			Usage:       "Path to onnxruntime.so for the ort backend",
			Aliases:     []string{"s"},
			Destination: &sharedLibraryPath,
		},
		&cli.IntFlag{
			Name:        "batchSize",
			Usage:       "Number of sentences per batch",
			Aliases:     []string{"b"},
			Destination: &batchSize,
			Value:       16,
		},
		&cli.IntFlag{
			Name:        "seqLength",
			Usage:       "Maximum augmented sequence length",
			Destination: &seqLength,
			Value:       128,
		},
		&cli.IntFlag{
			Name:        "tieBreakHead",
			Usage:       "Index of the head whose vote wins tied tallies",
			Destination: &tieBreakHead,
			Value:       0,
		},
		&cli.BoolFlag{
			Name:        "shuffle",
			Usage:       "Shuffle the dataset once before batching",
			Destination: &shuffle,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "Shuffle seed",
			Destination: &shuffleSeed,
			Value:       7,
		},
		&cli.BoolFlag{
			Name:        "concurrent",
			Usage:       "Dispatch heads concurrently within each batch",
			Destination: &concurrentHeads,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Emit the result as json even on a terminal",
			Destination: &jsonOutput,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path to write the json result to. If omitted, the result goes to stdout",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
	},
	Action: func(ctx *cli.Context) error {
		vocab, err := labels.FromTrainingFile(trainPath)
		if err != nil {
			return err
		}
		tokens, err := dataset.LoadTokenVocabulary(vocabPath)
		if err != nil {
			return err
		}

		injector := &dataset.PassthroughInjector{MaxLength: seqLength, PadToken: labels.PadTag}
		var loadOpts []dataset.LoadOption
		if shuffle {
			loadOpts = append(loadOpts, dataset.WithShuffle(shuffleSeed))
		}
		data, err := dataset.Load(evalPath, tokens, vocab, injector, loadOpts...)
		if err != nil {
			return err
		}

		encoder, err := newEncoder()
		if err != nil {
			return err
		}

		var members []*heads.Head
		for _, checkpointPath := range checkpointPaths.Value() {
			checkpoint, err := backends.LoadCheckpoint(checkpointPath)
			if err != nil {
				return err
			}
			refiner, decoder, err := heads.ParseArchitecture(checkpoint.Architecture)
			if err != nil {
				return fmt.Errorf("checkpoint %s: %w", checkpointPath, err)
			}
			head, err := heads.New(heads.Config{
				Name:       path.Base(checkpointPath),
				Refiner:    refiner,
				Decoder:    decoder,
				LabelCount: vocab.Size(),
			}, encoder, checkpoint)
			if err != nil {
				return err
			}
			members = append(members, head)
		}

		ensembleOpts := []kbner.WithOption{kbner.WithTieBreakHead(tieBreakHead)}
		if concurrentHeads {
			ensembleOpts = append(ensembleOpts, kbner.WithConcurrentHeads())
		}
		ensemble, err := kbner.NewEnsemble(vocab, members, ensembleOpts...)
		if err != nil {
			return err
		}

		result, err := ensemble.Evaluate(ctx.Context, data, batchSize)
		if err != nil {
			return err
		}
		return writeResult(result)
	},
}

var downloadCommand = &cli.Command{
	Name:  "download",
	Usage: "Download an onnx encoder and its vocabulary from huggingface",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Huggingface model name",
			Aliases:     []string{"m"},
			Destination: &downloadModelName,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "destination",
			Usage:       "Folder to store the downloaded model in",
			Aliases:     []string{"d"},
			Destination: &downloadDestination,
			Value:       ".",
		},
		&cli.StringFlag{
			Name:        "onnxFilePath",
			Usage:       "Onnx file to pick when the repository has several exports",
			Destination: &downloadOnnxFilePath,
		},
		&cli.StringFlag{
			Name:        "token",
			Usage:       "Huggingface auth token for gated models",
			Destination: &downloadAuthToken,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Usage:       "Report download progress",
			Aliases:     []string{"v"},
			Destination: &downloadVerbose,
		},
	},
	Action: func(_ *cli.Context) error {
		options := kbner.NewDownloadOptions()
		options.OnnxFilePath = downloadOnnxFilePath
		options.AuthToken = downloadAuthToken
		options.Verbose = downloadVerbose
		modelPath, err := kbner.DownloadEncoder(downloadModelName, downloadDestination, options)
		if err != nil {
			return err
		}
		fmt.Println(modelPath)
		return nil
	},
}

func newEncoder() (backends.Encoder, error) {
	onnxBytes, err := fileutil.ReadFileBytes(encoderPath)
	if err != nil {
		return nil, fmt.Errorf("reading encoder %s: %w", encoderPath, err)
	}
	switch backend {
	case "go":
		return backends.NewGoEncoder(onnxBytes)
	case "ort":
		return backends.NewORTEncoder(onnxBytes, sharedLibraryPath)
	default:
		return nil, fmt.Errorf("unknown backend %q, expected go or ort", backend)
	}
}

func writeResult(result *kbner.Result) error {
	if outputPath == "" && !jsonOutput && isatty.IsTerminal(os.Stdout.Fd()) {
		for _, head := range result.Heads {
			fmt.Printf("head %-30s (%s): mean loss %.4f, accuracy %.4f\n",
				head.Name, head.Architecture, head.MeanLoss, head.Accuracy)
		}
		fmt.Printf("merged: accuracy %.4f over %d tokens\n\n", result.MergedAccuracy, result.Tokens)
		fmt.Print(result.Report.String())
		return nil
	}

	serialized, err := jsoniter.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if outputPath != "" {
		return fileutil.WriteFileBytes(outputPath, serialized)
	}
	_, err = os.Stdout.Write(append(serialized, '\n'))
	return err
}

func main() {
	app := &cli.App{
		Name:     "kbner",
		Usage:    "Ensemble evaluation for knowledge-augmented sequence labeling",
		Commands: []*cli.Command{evaluateCommand, downloadCommand},
	}
	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}
