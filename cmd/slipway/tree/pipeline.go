package tree

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/slipway-dev/slipway/pkg/artifact"
	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/hostinfo"
	"github.com/slipway-dev/slipway/pkg/manifest"
	"github.com/slipway-dev/slipway/pkg/plan"
	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/swiftpm"
	"github.com/slipway-dev/slipway/pkg/verify"
)

// release tracks one target through the pipeline. Steps run in dependency
// order, so each step reads what its predecessors wrote.
type release struct {
	target   manifest.TargetBlock
	opts     swiftpm.BuildOptions
	binPath  string
	artifact *artifact.Artifact
	archive  string
	reports  []*verify.Report
}

// pipeline holds the state shared by the release steps of one run.
type pipeline struct {
	m        *manifest.Manifest
	root     string
	host     hostinfo.Host
	version  string
	swiftVer string
	products []string
	rnr      runner.Runner
	stager   *artifact.Stager
	releases []*release
}

// newPipeline resolves everything a release run needs up front: the host,
// the targets, the version, the toolchain, and the product list. It shells
// out to git and swift, so display-only callers use displayPipeline.
func newPipeline(ctx context.Context, m *manifest.Manifest, root string, rnr runner.Runner, triples []string) (*pipeline, error) {
	host, err := hostinfo.Detect()
	if err != nil {
		return nil, err
	}
	targets, err := resolveTargets(m, host, triples)
	if err != nil {
		return nil, err
	}

	version, err := artifact.ResolveVersion(ctx, rnr, root, m.Project.Version)
	if err != nil {
		return nil, err
	}
	toolchain, err := swiftpm.Version(ctx, rnr)
	if err != nil {
		return nil, err
	}

	pkg, err := swiftpm.DumpPackage(ctx, rnr, root)
	if err != nil {
		return nil, err
	}
	products := pkg.ExecutableProducts()
	if m.Build.Product != "" {
		if !slices.Contains(products, m.Build.Product) {
			return nil, fmt.Errorf("%w: product %q is not an executable product of %s",
				manifest.ErrInvalidManifest, m.Build.Product, pkg.Name)
		}
		products = []string{m.Build.Product}
	} else if len(products) == 0 {
		return nil, fmt.Errorf("%w: %s", swiftpm.ErrNoExecutableProducts, pkg.Name)
	}

	p := &pipeline{
		m:        m,
		root:     root,
		host:     host,
		version:  version,
		swiftVer: toolchain.Version,
		products: products,
		rnr:      rnr,
		stager:   artifact.NewStager(artifact.WithDistDir(filepath.Join(root, constants.DirDist))),
	}
	p.addReleases(targets)
	return p, nil
}

// displayPipeline builds the same state without running any tools, for
// showing the plan. Values that would need git or swift get placeholders.
func displayPipeline(m *manifest.Manifest, root string, triples []string) (*pipeline, error) {
	host, err := hostinfo.Detect()
	if err != nil {
		return nil, err
	}
	targets, err := resolveTargets(m, host, triples)
	if err != nil {
		return nil, err
	}

	version := m.Project.Version
	if version == "" {
		version = "VERSION"
	}
	products := []string{m.Build.Product}
	if m.Build.Product == "" {
		products = []string{"all executable products"}
	}

	p := &pipeline{
		m:        m,
		root:     root,
		host:     host,
		version:  version,
		products: products,
	}
	p.addReleases(targets)
	return p, nil
}

func (p *pipeline) addReleases(targets []manifest.TargetBlock) {
	for _, target := range targets {
		p.releases = append(p.releases, &release{
			target: target,
			opts:   p.buildOptions(target),
		})
	}
}

func (p *pipeline) buildOptions(target manifest.TargetBlock) swiftpm.BuildOptions {
	opts := swiftpm.BuildOptions{
		Directory:     p.root,
		Configuration: p.m.Build.Configuration,
		Product:       p.m.Build.Product,
		StaticStdlib:  p.m.Build.StaticStdlibFor(target.Triple),
		Strip:         p.m.Build.Strip,
		SwiftcFlags:   p.m.Build.SwiftcFlags,
		LinkerFlags:   p.m.Build.LinkerFlags,
		Extra:         p.m.Build.Flags,
		Env:           p.m.Build.Env,
		Jobs:          p.m.Build.Jobs,
	}
	// Native builds need no SDK unless the manifest names one.
	if target.Triple != p.host.Triple || target.SwiftSDK != "" {
		opts.SwiftSDK = target.SDKID()
	}
	return opts
}

// name returns the artifact name for one of the run's targets.
func (p *pipeline) name(triple string) string {
	return artifact.Name(p.m.Project.Name, p.version, p.m.Build.Configuration, triple)
}

// resolveTargets picks the targets for a run: the requested triples, or
// every manifest target, or the host when the manifest defines none.
func resolveTargets(m *manifest.Manifest, host hostinfo.Host, requested []string) ([]manifest.TargetBlock, error) {
	targets := m.Targets
	if len(targets) == 0 {
		targets = []manifest.TargetBlock{{Triple: host.Triple}}
	}
	if len(requested) == 0 {
		return targets, nil
	}

	picked := make([]manifest.TargetBlock, 0, len(requested))
	for _, triple := range requested {
		var found *manifest.TargetBlock
		for i := range targets {
			if targets[i].Triple == triple {
				found = &targets[i]
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("%w: no target %q", manifest.ErrInvalidManifest, triple)
		}
		picked = append(picked, *found)
	}
	return picked, nil
}

// planOptions selects which steps a run's plan carries. Display plans hold
// summaries only, so they can be shown without doing any work.
type planOptions struct {
	display bool
	archive bool
	verify  bool
}

// plan assembles the step graph for the run. Unless the plan is for
// display, each step closes over its release's state.
func (p *pipeline) plan(opts planOptions) (*plan.Plan, error) {
	pl := plan.New()
	for _, rel := range p.releases {
		triple := rel.target.Triple
		name := p.name(triple)

		buildID := plan.KindBuild + ":" + triple
		stageID := plan.KindStage + ":" + triple

		build := &plan.Step{
			ID:      buildID,
			Kind:    plan.KindBuild,
			Triple:  triple,
			Summary: "swift " + strings.Join(rel.opts.Args(), " "),
		}
		stage := &plan.Step{
			ID:      stageID,
			Kind:    plan.KindStage,
			Triple:  triple,
			Summary: fmt.Sprintf("stage %s into %s", strings.Join(p.products, ", "), filepath.Join(constants.DirDist, name)),
		}
		if !opts.display {
			build.Run = p.buildStep(rel)
			stage.Run = p.stageStep(rel)
		}
		steps := []*plan.Step{build, stage}
		deps := [][2]string{{buildID, stageID}}

		if opts.archive {
			archive := &plan.Step{
				ID:      plan.KindArchive + ":" + triple,
				Kind:    plan.KindArchive,
				Triple:  triple,
				Summary: "write " + filepath.Join(constants.DirDist, name+".tar.gz"),
			}
			if !opts.display {
				archive.Run = p.archiveStep(rel)
			}
			steps = append(steps, archive)
			deps = append(deps, [2]string{stageID, archive.ID})
		}

		if opts.verify {
			if step, ok := p.verifyStep(rel, opts.display); ok {
				steps = append(steps, step)
				deps = append(deps, [2]string{stageID, step.ID})
			}
		}

		for _, step := range steps {
			if err := pl.AddStep(step); err != nil {
				return nil, err
			}
		}
		for _, dep := range deps {
			if err := pl.AddDependency(dep[0], dep[1]); err != nil {
				return nil, err
			}
		}
	}
	return pl, nil
}

func (p *pipeline) buildStep(rel *release) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := swiftpm.Build(ctx, p.rnr, rel.opts); err != nil {
			return err
		}
		binPath, err := swiftpm.BinPath(ctx, p.rnr, rel.opts)
		if err != nil {
			return err
		}
		rel.binPath = binPath
		return nil
	}
}

func (p *pipeline) stageStep(rel *release) func(context.Context) error {
	return func(_ context.Context) error {
		staged, err := p.stager.Stage(artifact.StageInput{
			Project:       p.m.Project.Name,
			Version:       p.version,
			Configuration: p.m.Build.Configuration,
			Triple:        rel.target.Triple,
			SwiftVersion:  p.swiftVer,
			BinPath:       rel.binPath,
			Products:      p.products,
		})
		if err != nil {
			return err
		}
		rel.artifact = staged
		return nil
	}
}

func (p *pipeline) archiveStep(rel *release) func(context.Context) error {
	return func(_ context.Context) error {
		archive, err := p.stager.Archive(rel.artifact)
		if err != nil {
			return err
		}
		rel.archive = archive
		return nil
	}
}

// verifyStep returns the smoke test step for a target, or ok=false when
// the target has no container platform to test on.
func (p *pipeline) verifyStep(rel *release, display bool) (*plan.Step, bool) {
	vb := rel.target.Verify

	platform := ""
	if vb != nil {
		platform = vb.Platform
	}
	if platform == "" {
		derived, err := verify.PlatformFor(rel.target.Triple)
		if err != nil {
			return nil, false
		}
		platform = derived
	}

	image := verify.DefaultImage
	var args []string
	var timeout time.Duration
	if vb != nil {
		if vb.Image != "" {
			image = vb.Image
		}
		args = vb.Args
		timeout = vb.TimeoutDuration()
	}

	step := &plan.Step{
		ID:      plan.KindVerify + ":" + rel.target.Triple,
		Kind:    plan.KindVerify,
		Triple:  rel.target.Triple,
		Summary: fmt.Sprintf("smoke test in %s on %s", image, platform),
	}
	if display {
		return step, true
	}

	step.Run = func(ctx context.Context) error {
		for _, product := range rel.artifact.Meta.Products {
			report, err := verify.Run(ctx, p.rnr, verify.Options{
				ArtifactDir: rel.artifact.Dir,
				Product:     product.Name,
				Triple:      rel.target.Triple,
				Image:       image,
				Platform:    platform,
				Args:        args,
				Timeout:     timeout,
			})
			if err != nil {
				return err
			}
			rel.reports = append(rel.reports, report)
			if !report.OK {
				return fmt.Errorf("smoke test failed for %s: exit status %d: %s",
					product.Name, report.ExitCode, strings.TrimSpace(report.Stderr))
			}
		}
		return nil
	}
	return step, true
}
