// Package testutil has helpers shared by tests across the module.
package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"

	"github.com/slipway-dev/slipway/pkg/runner"
)

// FakeRunner is a scripted runner.Runner. Tests set the function fields to
// control responses; every command passed to Run is recorded.
type FakeRunner struct {
	RunFunc      func(ctx context.Context, cmd runner.Command) (*runner.Result, error)
	LookPathFunc func(name string) (string, error)

	Commands []runner.Command
}

func (f *FakeRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	f.Commands = append(f.Commands, cmd)
	if f.RunFunc != nil {
		return f.RunFunc(ctx, cmd)
	}
	return &runner.Result{}, nil
}

func (f *FakeRunner) LookPath(name string) (string, error) {
	if f.LookPathFunc != nil {
		return f.LookPathFunc(name)
	}
	return "/usr/bin/" + name, nil
}

// ExtractTarGz reads a gzipped tar archive into a map of path -> content.
func ExtractTarGz(data []byte) (map[string]string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	files := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		files[hdr.Name] = string(content)
	}
	return files, nil
}
