package services

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/imyashkale/fleetctl/internal/command"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// ListFiles lists one directory below the server's remote path. rel is
// resolved inside the remote path; it can never escape it. The returned
// path is rel in its cleaned form.
func (ls *LifecycleService) ListFiles(ctx context.Context, id, rel string) (string, []models.FileEntry, error) {
	entry, err := ls.registry.Get(id)
	if err != nil {
		return "", nil, err
	}

	rel = CleanRelative(rel)
	root := entry.Config.RemotePath
	if root == "" {
		root = "."
	}
	dir := path.Join(root, rel)

	listCmd, err := command.ListDirectory(dir)
	if err != nil {
		return "", nil, err
	}

	handle, err := ls.connect(ctx, entry.Config)
	if err != nil {
		return "", nil, err
	}
	defer ls.disconnect(id, handle)

	res, err := ls.provider.Execute(ctx, handle, listCmd)
	if err != nil {
		return "", nil, err
	}
	if res.ExitCode != 0 {
		return "", nil, fmt.Errorf("%w: listing %s exited with code %d: %s",
			models.ErrExecutionFailed, dir, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	files := ParseListing(res.Stdout)
	logger.WithServer(id).WithFields(map[string]interface{}{
		"path":  dir,
		"count": len(files),
	}).Debug("Listed remote directory")

	return rel, files, nil
}

// CleanRelative normalises a user supplied path to a form relative to the
// server directory, dropping any attempt to climb above it.
func CleanRelative(p string) string {
	clean := path.Clean("/" + strings.TrimSpace(p))
	return strings.TrimPrefix(clean, "/")
}

// ParseListing turns find's "%y\t%s\t%f" output into file entries,
// directories first, then by name.
func ParseListing(out string) []models.FileEntry {
	files := make([]models.FileEntry, 0)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 || parts[2] == "" {
			logger.WithField("line", line).Debug("Skipping malformed listing line")
			continue
		}

		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			size = 0
		}

		f := models.FileEntry{
			Name: parts[2],
			Type: fileType(parts[0]),
			Size: size,
		}
		if f.Type != models.FileTypeDirectory {
			f.Executable = models.ArtifactExtension(f.Name) != ""
		}
		files = append(files, f)
	}

	sort.SliceStable(files, func(i, j int) bool {
		di := files[i].Type == models.FileTypeDirectory
		dj := files[j].Type == models.FileTypeDirectory
		if di != dj {
			return di
		}
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})
	return files
}

func fileType(code string) string {
	switch code {
	case "d":
		return models.FileTypeDirectory
	case "f":
		return models.FileTypeFile
	case "l":
		return models.FileTypeSymlink
	default:
		return models.FileTypeOther
	}
}
