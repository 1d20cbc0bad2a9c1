package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/internal/validation"
	"github.com/tendant/simple-image-pipeline/internal/workflows"
	"github.com/tendant/simple-image-pipeline/pkg/logger"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
	"github.com/tendant/simple-image-pipeline/pkg/runner"
	"github.com/urfave/cli/v2"
)

func newRequestFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "request",
		Aliases: []string{"r"},
		Usage:   "Path to the request JSON document (\"-\" reads stdin)",
		Value:   "-",
	}
}

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "pipeline-invoke",
		Usage: "Run image version invocations without the HTTP worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Emit JSON log lines",
				EnvVars: []string{"LOG_JSON"},
			},
		},
		Before: func(c *cli.Context) error {
			// Logs go to stderr so stdout carries only the result document
			logger.ConfigureWriter(os.Stderr, c.String("log-level"), c.Bool("log-json"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "invoke",
				Usage: "Fetch, transform and upload one object, printing the result JSON",
				Flags: []cli.Flag{
					newRequestFlag(),
					&cli.StringFlag{
						Name:    "workspace-root",
						Usage:   "Directory to create invocation workspaces under",
						EnvVars: []string{"WORKSPACE_ROOT"},
					},
					&cli.StringFlag{
						Name:    "storage-backend",
						Usage:   "Object store backend (s3 or filesystem)",
						Value:   config.BackendS3,
						EnvVars: []string{"STORAGE_BACKEND"},
					},
					&cli.StringFlag{
						Name:    "storage-dir",
						Usage:   "Root directory for the filesystem backend",
						Value:   "./dev-data",
						EnvVars: []string{"STORAGE_DIR"},
					},
				},
				Action: runInvoke,
			},
			{
				Name:   "validate",
				Usage:  "Check a request document without running it",
				Flags:  []cli.Flag{newRequestFlag()},
				Action: runValidate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInvoke(c *cli.Context) error {
	raw, err := readRequest(c.String("request"))
	if err != nil {
		return err
	}

	settings := config.Load()
	settings.Storage.Backend = c.String("storage-backend")
	settings.Storage.FilesystemRoot = c.String("storage-dir")
	// Applied through Configure below so a bad root is reported as a config violation
	settings.WorkspaceRoot = ""

	r, err := runner.New(runner.FromSettings(settings))
	if err != nil {
		return err
	}

	if root := c.String("workspace-root"); root != "" {
		body, err := json.Marshal(pipeline.ConfigRequest{WorkspaceRoot: &root})
		if err != nil {
			return err
		}
		if err := r.Configure(body); err != nil {
			return failed(c, violationResponse(err))
		}
	}

	result, err := r.InvokeJSON(context.Background(), raw)
	if err != nil {
		return failed(c, workflows.Response(err))
	}
	return printJSON(c.App.Writer, result)
}

func runValidate(c *cli.Context) error {
	raw, err := readRequest(c.String("request"))
	if err != nil {
		return err
	}
	req, err := validation.ParseRequest(raw)
	if err != nil {
		return failed(c, violationResponse(err))
	}
	return printJSON(c.App.Writer, req)
}

func readRequest(path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read request from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	return raw, nil
}

func violationResponse(err error) pipeline.ErrorResponse {
	body := pipeline.ErrorBody{Stage: string(workflows.StageValidating), Message: err.Error()}
	var verr *validation.Error
	if errors.As(err, &verr) {
		body.Violations = verr.Violations
	}
	return pipeline.ErrorResponse{Error: body}
}

// failed prints the error document and exits non-zero
func failed(c *cli.Context, resp pipeline.ErrorResponse) error {
	if err := printJSON(c.App.Writer, resp); err != nil {
		return err
	}
	return cli.Exit("", 1)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
