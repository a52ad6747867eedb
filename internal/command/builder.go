// Package command builds the shell command lines used to launch and stop
// managed server processes. Everything here is pure: the same inputs always
// produce the same command line.
package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultMaxMemory is the heap ceiling used when neither the server nor the
// builder configures one
const DefaultMaxMemory = "4G"

var memoryPattern = regexp.MustCompile(`^[0-9]+[KMGkmg]?$`)

// Options tune the launch template
type Options struct {
	MinMemory string
	MaxMemory string
	JVMArgs   []string
}

// OptionsFor derives builder options from a server config, falling back to
// defaultMax for the heap ceiling.
func OptionsFor(cfg models.ServerConfig, defaultMax string) Options {
	opts := Options{MinMemory: cfg.MinMemory, MaxMemory: cfg.MaxMemory, JVMArgs: cfg.JVMArgs}
	if opts.MaxMemory == "" {
		opts.MaxMemory = defaultMax
	}
	return opts
}

// Build maps (server type, startup artifact, options) to the command line that
// launches the process. Unknown server types fall back to the generic template.
func Build(serverType models.ServerType, artifactPath string, opts Options) (string, error) {
	ext := models.ArtifactExtension(artifactPath)
	if ext == "" {
		return "", fmt.Errorf("%w: %q is not a launcher file", models.ErrInvalidArtifact, artifactPath)
	}

	if !serverType.Known() {
		logger.WithFields(map[string]interface{}{
			"server_type": string(serverType),
			"artifact":    artifactPath,
		}).Warn("Unknown server type, using generic launch template")
		serverType = models.TypeGeneric
	}

	artifact, err := quote(artifactPath)
	if err != nil {
		return "", err
	}

	switch ext {
	case ".sh":
		return "sh " + artifact, nil
	case ".bat":
		return "cmd /c " + artifact, nil
	case ".exe":
		if !strings.Contains(artifactPath, "/") {
			artifact, err = quote("./" + artifactPath)
			if err != nil {
				return "", err
			}
		}
		return artifact, nil
	}

	return javaCommand(serverType, artifact, opts)
}

func javaCommand(serverType models.ServerType, artifact string, opts Options) (string, error) {
	maxMem := opts.MaxMemory
	if maxMem == "" {
		maxMem = DefaultMaxMemory
	}
	if !memoryPattern.MatchString(maxMem) {
		return "", fmt.Errorf("%w: max memory %q", models.ErrInvalidConfig, maxMem)
	}
	if opts.MinMemory != "" && !memoryPattern.MatchString(opts.MinMemory) {
		return "", fmt.Errorf("%w: min memory %q", models.ErrInvalidConfig, opts.MinMemory)
	}

	args := []string{"java", "-server"}
	if opts.MinMemory != "" {
		args = append(args, "-Xms"+opts.MinMemory)
	}
	args = append(args, "-Xmx"+maxMem)
	for _, a := range opts.JVMArgs {
		q, err := quote(a)
		if err != nil {
			return "", err
		}
		args = append(args, q)
	}
	args = append(args, "-jar", artifact)

	// proxies have no world and reject nogui
	if !serverType.IsProxy() {
		args = append(args, "nogui")
	}
	return strings.Join(args, " "), nil
}

// Wrap runs cmd from inside remotePath, replacing the shell so signals reach
// the launched process.
func Wrap(remotePath, cmd string) (string, error) {
	if remotePath == "" {
		return "exec " + cmd, nil
	}
	dir, err := quote(remotePath)
	if err != nil {
		return "", err
	}
	return "cd " + dir + " && exec " + cmd, nil
}

// StopCommand returns the console line that asks the server to shut down
// gracefully, or "" when the process has no console verb and must be signalled.
func StopCommand(serverType models.ServerType, artifactPath string) string {
	if models.ArtifactExtension(artifactPath) != ".jar" {
		return ""
	}
	if serverType.IsProxy() {
		return "end"
	}
	return "stop"
}

// ListDirectory returns the command that prints one "<type>\t<size>\t<name>"
// line per entry of dir.
func ListDirectory(dir string) (string, error) {
	q, err := quote(dir)
	if err != nil {
		return "", err
	}
	return "find " + q + ` -mindepth 1 -maxdepth 1 -printf '%y\t%s\t%f\n'`, nil
}

func quote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("%w: cannot quote %q: %v", models.ErrInvalidConfig, s, err)
	}
	return q, nil
}
