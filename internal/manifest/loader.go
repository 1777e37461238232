package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	pathutils "github.com/repoteer/repoteer/internal/utils/path"
)

const (
	manifestNotFoundMessageConstant        = "manifest file not found"
	noRepositoriesMessageConstant          = "manifest declares no repositories"
	manifestReadErrorTemplateConstant      = "unable to read manifest %s: %w"
	manifestParseErrorTemplateConstant     = "unable to parse manifest %s: %v"
	manifestValidationErrorTemplate        = "invalid manifest %s: %v"
	defaultManifestDirectoryNameConstant   = "repoteer"
	defaultManifestFileNameConstant        = "manifest.toml"
	tomlManifestExtensionConstant          = ".toml"
	yamlManifestExtensionConstant          = ".yaml"
	shortYAMLManifestExtensionConstant     = ".yml"
	tomlConfigurationTypeConstant          = "toml"
	unsupportedExtensionTemplateConstant   = "unsupported manifest extension %q"
	userConfigDirectoryErrorTemplateString = "unable to resolve user configuration directory: %w"
)

// ErrManifestNotFound indicates the manifest file does not exist on disk.
var ErrManifestNotFound = errors.New(manifestNotFoundMessageConstant)

// ErrNoRepositories indicates the manifest parsed correctly but declares nothing to manage.
var ErrNoRepositories = errors.New(noRepositoriesMessageConstant)

// ParseError reports a manifest that exists but could not be decoded or validated.
type ParseError struct {
	Path  string
	Cause error
}

// Error implements the error interface for ParseError.
func (parseError ParseError) Error() string {
	return fmt.Sprintf(manifestParseErrorTemplateConstant, parseError.Path, parseError.Cause)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (parseError ParseError) Unwrap() error {
	return parseError.Cause
}

// Loader reads repository manifests from the local filesystem.
type Loader struct {
	homeExpander *pathutils.HomeExpander
}

// NewLoader constructs a Loader using operating system home directory resolution.
func NewLoader() *Loader {
	return &Loader{homeExpander: pathutils.NewHomeExpander()}
}

// DefaultManifestPath returns the manifest location used when no override is supplied.
func DefaultManifestPath() (string, error) {
	userConfigDirectory, configDirectoryError := os.UserConfigDir()
	if configDirectoryError != nil {
		return "", fmt.Errorf(userConfigDirectoryErrorTemplateString, configDirectoryError)
	}
	return filepath.Join(userConfigDirectory, defaultManifestDirectoryNameConstant, defaultManifestFileNameConstant), nil
}

// Load reads, decodes, and validates the manifest at the supplied path. An
// empty path selects the default manifest location.
func (loader *Loader) Load(manifestPath string) ([]RepoSpec, error) {
	resolvedPath := strings.TrimSpace(manifestPath)
	if len(resolvedPath) == 0 {
		defaultPath, defaultPathError := DefaultManifestPath()
		if defaultPathError != nil {
			return nil, defaultPathError
		}
		resolvedPath = defaultPath
	}
	resolvedPath = loader.homeExpander.Expand(resolvedPath)

	manifestContent, readError := os.ReadFile(resolvedPath)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, resolvedPath)
		}
		return nil, fmt.Errorf(manifestReadErrorTemplateConstant, resolvedPath, readError)
	}

	decodedManifest, decodeError := loader.decode(resolvedPath, manifestContent)
	if decodeError != nil {
		return nil, ParseError{Path: resolvedPath, Cause: decodeError}
	}

	expandedRepositories := make([]RepoSpec, len(decodedManifest.Repos))
	for repositoryIndex, repository := range decodedManifest.Repos {
		repository.Path = loader.homeExpander.Expand(strings.TrimSpace(repository.Path))
		repository.URL = strings.TrimSpace(repository.URL)
		expandedRepositories[repositoryIndex] = repository
	}

	if validationError := validateRepositories(expandedRepositories); validationError != nil {
		if errors.Is(validationError, ErrNoRepositories) {
			return nil, fmt.Errorf("%w: %s", ErrNoRepositories, resolvedPath)
		}
		return nil, ParseError{Path: resolvedPath, Cause: validationError}
	}

	return expandedRepositories, nil
}

func (loader *Loader) decode(manifestPath string, manifestContent []byte) (Manifest, error) {
	var decodedManifest Manifest

	switch strings.ToLower(filepath.Ext(manifestPath)) {
	case tomlManifestExtensionConstant:
		viperInstance := viper.New()
		viperInstance.SetConfigType(tomlConfigurationTypeConstant)
		if readError := viperInstance.ReadConfig(bytes.NewReader(manifestContent)); readError != nil {
			return Manifest{}, readError
		}
		if unmarshalError := viperInstance.Unmarshal(&decodedManifest); unmarshalError != nil {
			return Manifest{}, unmarshalError
		}
	case yamlManifestExtensionConstant, shortYAMLManifestExtensionConstant:
		if unmarshalError := yaml.Unmarshal(manifestContent, &decodedManifest); unmarshalError != nil {
			return Manifest{}, unmarshalError
		}
	default:
		return Manifest{}, fmt.Errorf(unsupportedExtensionTemplateConstant, filepath.Ext(manifestPath))
	}

	return decodedManifest, nil
}
