package command

import (
	"testing"

	"github.com/imyashkale/fleetctl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		serverType models.ServerType
		artifact   string
		opts       Options
		want       string
	}{
		{
			name:       "paper jar gets nogui",
			serverType: models.TypePaper,
			artifact:   "paper.jar",
			want:       "java -server -Xmx4G -jar paper.jar nogui",
		},
		{
			name:       "velocity proxy has no nogui",
			serverType: models.TypeVelocity,
			artifact:   "velocity-3.3.0-SNAPSHOT-385.jar",
			want:       "java -server -Xmx4G -jar velocity-3.3.0-SNAPSHOT-385.jar",
		},
		{
			name:       "fabric with memory options",
			serverType: models.TypeFabric,
			artifact:   "fabric-server-launch.jar",
			opts:       Options{MinMemory: "1G", MaxMemory: "6G"},
			want:       "java -server -Xms1G -Xmx6G -jar fabric-server-launch.jar nogui",
		},
		{
			name:       "unknown type falls back to generic",
			serverType: models.ServerType("quilt"),
			artifact:   "quilt.jar",
			want:       "java -server -Xmx4G -jar quilt.jar nogui",
		},
		{
			name:       "shell script",
			serverType: models.TypeForge,
			artifact:   "run.sh",
			want:       "sh run.sh",
		},
		{
			name:       "batch script",
			serverType: models.TypeForge,
			artifact:   "run.bat",
			want:       "cmd /c run.bat",
		},
		{
			name:       "native executable",
			serverType: models.TypeGeneric,
			artifact:   "launcher.exe",
			want:       "./launcher.exe",
		},
		{
			name:       "spaces are quoted",
			serverType: models.TypeSpigot,
			artifact:   "my server.jar",
			want:       "java -server -Xmx4G -jar 'my server.jar' nogui",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.serverType, tt.artifact, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	opts := Options{MaxMemory: "2G", JVMArgs: []string{"-XX:+UseG1GC"}}

	first, err := Build(models.TypePaper, "paper.jar", opts)
	require.NoError(t, err)
	second, err := Build(models.TypePaper, "paper.jar", opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "-XX:+UseG1GC")
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(models.TypePaper, "readme.txt", Options{})
	assert.ErrorIs(t, err, models.ErrInvalidArtifact)

	_, err = Build(models.TypePaper, "paper.jar", Options{MaxMemory: "4G; rm -rf /"})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	_, err = Build(models.TypePaper, "paper.jar", Options{MinMemory: "lots"})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestWrap(t *testing.T) {
	got, err := Wrap("/home/minecraft/server1", "sh run.sh")
	require.NoError(t, err)
	assert.Equal(t, "cd /home/minecraft/server1 && exec sh run.sh", got)

	got, err = Wrap("/srv/my server", "sh run.sh")
	require.NoError(t, err)
	assert.Equal(t, "cd '/srv/my server' && exec sh run.sh", got)

	got, err = Wrap("", "sh run.sh")
	require.NoError(t, err)
	assert.Equal(t, "exec sh run.sh", got)
}

func TestStopCommand(t *testing.T) {
	assert.Equal(t, "stop", StopCommand(models.TypePaper, "paper.jar"))
	assert.Equal(t, "end", StopCommand(models.TypeVelocity, "velocity.jar"))
	assert.Equal(t, "", StopCommand(models.TypePaper, "run.sh"))
}

func TestOptionsFor(t *testing.T) {
	opts := OptionsFor(models.ServerConfig{MinMemory: "512M"}, "8G")
	assert.Equal(t, "512M", opts.MinMemory)
	assert.Equal(t, "8G", opts.MaxMemory)

	opts = OptionsFor(models.ServerConfig{MaxMemory: "2G"}, "8G")
	assert.Equal(t, "2G", opts.MaxMemory)
}

func TestListDirectory(t *testing.T) {
	got, err := ListDirectory("/home/minecraft/server1/mods")
	require.NoError(t, err)
	assert.Equal(t, `find /home/minecraft/server1/mods -mindepth 1 -maxdepth 1 -printf '%y\t%s\t%f\n'`, got)
}
