package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantType ProjectType
		wantName string
	}{
		{
			name: "gradle spring",
			files: map[string]string{
				"build.gradle.kts":    `plugins { id("org.springframework.boot") version "3.2.0" }`,
				"settings.gradle.kts": `rootProject.name = "demo-service"`,
				"package.json":        `{"name":"assets"}`,
			},
			wantType: ProjectGradle,
			wantName: "demo-service",
		},
		{
			name: "maven",
			files: map[string]string{
				"pom.xml": `<project><parent><artifactId>spring-boot-starter-parent</artifactId></parent>
<artifactId>orders</artifactId></project>`,
			},
			wantType: ProjectMaven,
			wantName: "orders",
		},
		{
			name:     "go",
			files:    map[string]string{"go.mod": "module github.com/acme/widget\n\ngo 1.22\n"},
			wantType: ProjectGo,
			wantName: "widget",
		},
		{
			name:     "node",
			files:    map[string]string{"package.json": `{"name":"web","scripts":{"dev":"vite"}}`, "yarn.lock": ""},
			wantType: ProjectNode,
			wantName: "web",
		},
		{
			name:     "python",
			files:    map[string]string{"pyproject.toml": "[project]\nname = \"tool\"\n"},
			wantType: ProjectPython,
			wantName: "tool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, tt.files)
			proj, err := Detect(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, proj.Type)
			assert.Equal(t, tt.wantName, proj.Name)
			assert.True(t, filepath.IsAbs(proj.Path))
		})
	}
}

func TestDetectUnknownAndErrors(t *testing.T) {
	dir := t.TempDir()
	proj, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, ProjectUnknown, proj.Type)
	assert.Equal(t, filepath.Base(dir), proj.Name)
	assert.Nil(t, DefaultRunConfig(proj))

	_, err = Detect(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Detect(file)
	assert.Error(t, err)
}

func TestDefaultRunConfig(t *testing.T) {
	t.Run("gradle wrapper with spring", func(t *testing.T) {
		dir := writeFiles(t, map[string]string{
			"build.gradle": `id 'org.springframework.boot'`,
		})
		require.NoError(t, os.WriteFile(filepath.Join(dir, "gradlew"), []byte("#!/bin/sh\n"), 0o755))

		proj, err := Detect(dir)
		require.NoError(t, err)
		rc := defaultRunConfig(proj, "linux")
		require.NotNil(t, rc)
		assert.Equal(t, filepath.Join(dir, "gradlew"), rc.Command)
		assert.Equal(t, []string{"bootRun"}, rc.Args)
		assert.Contains(t, rc.ReadyMarkers, "Tomcat started on port")
	})

	t.Run("maven without wrapper", func(t *testing.T) {
		proj := &Project{Type: ProjectMaven, Metadata: map[string]string{}}
		rc := defaultRunConfig(proj, "linux")
		require.NotNil(t, rc)
		assert.Equal(t, "mvn", rc.Command)
		assert.Equal(t, []string{"compile", "exec:java"}, rc.Args)
	})

	t.Run("go", func(t *testing.T) {
		rc := defaultRunConfig(&Project{Type: ProjectGo}, "linux")
		require.NotNil(t, rc)
		assert.Equal(t, "go run .", rc.CommandLine())
	})

	t.Run("node prefers dev", func(t *testing.T) {
		proj := &Project{Type: ProjectNode, PackageManager: "pnpm", Metadata: map[string]string{"scripts": "build,start,dev"}}
		rc := defaultRunConfig(proj, "linux")
		require.NotNil(t, rc)
		assert.Equal(t, "pnpm run dev", rc.CommandLine())
	})

	t.Run("node without scripts", func(t *testing.T) {
		proj := &Project{Type: ProjectNode, Metadata: map[string]string{}}
		assert.Nil(t, defaultRunConfig(proj, "linux"))
	})

	t.Run("django on windows", func(t *testing.T) {
		proj := &Project{Type: ProjectPython, Metadata: map[string]string{"framework": "django"}}
		rc := defaultRunConfig(proj, "windows")
		require.NotNil(t, rc)
		assert.Equal(t, "python manage.py runserver", rc.CommandLine())
	})
}

func TestRunConfigWorkDir(t *testing.T) {
	root := filepath.FromSlash("/srv/app")
	assert.Equal(t, root, (&RunConfig{}).WorkDir(root))
	assert.Equal(t, filepath.Join(root, "server"), (&RunConfig{Dir: "server"}).WorkDir(root))

	abs := filepath.Join(t.TempDir(), "elsewhere")
	assert.Equal(t, abs, (&RunConfig{Dir: abs}).WorkDir(root))
}

func TestActive(t *testing.T) {
	var a Active
	_, err := a.Project()
	assert.True(t, errors.Is(err, ErrNoProject))
	_, _, err = a.RunConfig()
	assert.True(t, errors.Is(err, ErrNoProject))

	proj := &Project{Path: "/tmp/x", Type: ProjectGo}
	a.Set(proj, nil)
	got, err := a.Project()
	require.NoError(t, err)
	assert.Same(t, proj, got)

	_, _, err = a.RunConfig()
	assert.True(t, errors.Is(err, ErrNoRunConfig))

	a.SelectRunConfig(&RunConfig{Command: "go", Args: []string{"run", "."}})
	p, rc, err := a.RunConfig()
	require.NoError(t, err)
	assert.Same(t, proj, p)
	assert.Equal(t, "go", rc.Command)
}
