package swiftpm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/runner"
)

var ErrNoExecutableProducts = errors.New("package has no executable products")

// Package is the slice of a SwiftPM package manifest slipway cares about.
type Package struct {
	Name     string
	Products []Product
}

type Product struct {
	Name       string
	Executable bool
}

// ExecutableProducts returns the names of the package's executable
// products, in manifest order.
func (p *Package) ExecutableProducts() []string {
	names := []string{}
	for _, product := range p.Products {
		if product.Executable {
			names = append(names, product.Name)
		}
	}
	return names
}

// dump-package encodes product types as a single-key object, for example
// {"executable": null} or {"library": ["automatic"]}.
type packageDump struct {
	Name     string `json:"name"`
	Products []struct {
		Name string                     `json:"name"`
		Type map[string]json.RawMessage `json:"type"`
	} `json:"products"`
}

// DumpPackage reads the package manifest via swift package dump-package.
func DumpPackage(ctx context.Context, rnr runner.Runner, dir string) (*Package, error) {
	result, err := rnr.Run(ctx, runner.Command{
		Name: constants.ToolSwift,
		Args: []string{"package", "dump-package"},
		Dir:  dir,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to run swift package dump-package: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("swift package dump-package exited with status %d: %s",
			result.ExitCode, result.StderrTail(5))
	}

	dump := packageDump{}
	if err = json.Unmarshal(result.Stdout, &dump); err != nil {
		return nil, fmt.Errorf("unable to parse package manifest: %w", err)
	}

	pkg := &Package{Name: dump.Name}
	for _, product := range dump.Products {
		_, executable := product.Type["executable"]
		pkg.Products = append(pkg.Products, Product{
			Name:       product.Name,
			Executable: executable,
		})
	}
	return pkg, nil
}
