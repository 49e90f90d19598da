package constants

const (
	DirDist    = "dist"
	DirSources = "Sources"

	FileBuildManifest = "build-manifest.json"
	FileChecksums     = "SHA256SUMS"
	FileManifest      = "slipway.hcl"
	FilePackageSwift  = "Package.swift"

	ToolDocker = "docker"
	ToolFile   = "file"
	ToolGit    = "git"
	ToolPodman = "podman"
	ToolSwift  = "swift"

	ConfigurationDebug   = "debug"
	ConfigurationRelease = "release"
)

// Exit codes returned by the slipway CLI. CI wrappers check these
// symbolically rather than using magic numbers.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitFailure indicates a runtime failure (build failed, verification
	// failed, checks found errors).
	ExitFailure = 1

	// ExitConfigError indicates an invalid manifest or invalid flags.
	ExitConfigError = 2

	// ExitEnvError indicates a missing external tool or an otherwise
	// unusable environment (no container runtime, no swift toolchain).
	ExitEnvError = 3
)

// "Constants" that are defined with ldflags during compile.
var (
	Version = "devel"
)
