package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ProjectType identifies the kind of project.
type ProjectType string

const (
	// ProjectGradle is a Gradle build (build.gradle, build.gradle.kts).
	ProjectGradle ProjectType = "gradle"
	// ProjectMaven is a Maven build (pom.xml).
	ProjectMaven ProjectType = "maven"
	// ProjectGo is a Go project (go.mod).
	ProjectGo ProjectType = "go"
	// ProjectNode is a Node.js project (package.json).
	ProjectNode ProjectType = "node"
	// ProjectPython is a Python project (pyproject.toml, setup.py, requirements.txt).
	ProjectPython ProjectType = "python"
	// ProjectUnknown is an unrecognized project type.
	ProjectUnknown ProjectType = "unknown"
)

// Project represents a detected development project.
type Project struct {
	// Path is the absolute path to the project root.
	Path string `json:"path"`
	// Type is the detected project type.
	Type ProjectType `json:"type"`
	// Name is the project name (from config files or directory name).
	Name string `json:"name"`
	// PackageManager is the detected package manager (for Node.js).
	PackageManager string `json:"package_manager,omitempty"`
	// Metadata holds additional project-specific info.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Detect examines the given path and returns project information.
// Returns a Project with Type=ProjectUnknown if no project type is detected.
func Detect(path string) (*Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrInvalid
	}

	// JVM builds first: a Spring project often carries a package.json for
	// its frontend assets.
	detectors := []func(string) *Project{
		detectGradle,
		detectMaven,
		detectGo,
		detectNode,
		detectPython,
	}
	for _, detect := range detectors {
		if proj := detect(absPath); proj != nil {
			return proj, nil
		}
	}

	return &Project{
		Path: absPath,
		Type: ProjectUnknown,
		Name: filepath.Base(absPath),
	}, nil
}

// detectGradle checks for a Gradle build.
func detectGradle(path string) *Project {
	var buildFile string
	for _, name := range []string{"build.gradle.kts", "build.gradle"} {
		if fileExists(filepath.Join(path, name)) {
			buildFile = name
			break
		}
	}
	if buildFile == "" {
		return nil
	}

	proj := &Project{
		Path:     path,
		Type:     ProjectGradle,
		Name:     parseGradleProjectName(path),
		Metadata: map[string]string{"build-file": buildFile},
	}
	if fileExists(filepath.Join(path, "gradlew")) || fileExists(filepath.Join(path, "gradlew.bat")) {
		proj.Metadata["wrapper"] = "true"
	}
	if containsString(filepath.Join(path, buildFile), "org.springframework.boot") {
		proj.Metadata["framework"] = "spring-boot"
	}
	return proj
}

// parseGradleProjectName reads rootProject.name from the settings script.
func parseGradleProjectName(path string) string {
	re := regexp.MustCompile(`rootProject\.name\s*=\s*["']([^"']+)["']`)
	for _, name := range []string{"settings.gradle.kts", "settings.gradle"} {
		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			continue
		}
		if m := re.FindSubmatch(data); len(m) > 1 {
			return string(m[1])
		}
	}
	return filepath.Base(path)
}

// detectMaven checks for a Maven build.
func detectMaven(path string) *Project {
	pomPath := filepath.Join(path, "pom.xml")
	if !fileExists(pomPath) {
		return nil
	}

	proj := &Project{
		Path:     path,
		Type:     ProjectMaven,
		Name:     parsePomArtifactID(pomPath),
		Metadata: make(map[string]string),
	}
	if fileExists(filepath.Join(path, "mvnw")) || fileExists(filepath.Join(path, "mvnw.cmd")) {
		proj.Metadata["wrapper"] = "true"
	}
	if containsString(pomPath, "spring-boot") {
		proj.Metadata["framework"] = "spring-boot"
	}
	return proj
}

// parsePomArtifactID returns the first artifactId after the parent block.
func parsePomArtifactID(pomPath string) string {
	data, err := os.ReadFile(pomPath)
	if err != nil {
		return filepath.Base(filepath.Dir(pomPath))
	}
	text := string(data)
	if i := strings.Index(text, "</parent>"); i >= 0 {
		text = text[i:]
	}
	re := regexp.MustCompile(`<artifactId>\s*([^<\s]+)\s*</artifactId>`)
	if m := re.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return filepath.Base(filepath.Dir(pomPath))
}

// detectGo checks for a Go project.
func detectGo(path string) *Project {
	goModPath := filepath.Join(path, "go.mod")
	if _, err := os.Stat(goModPath); err != nil {
		return nil
	}

	proj := &Project{
		Path:     path,
		Type:     ProjectGo,
		Name:     parseGoModuleName(goModPath),
		Metadata: make(map[string]string),
	}
	if fileExists(filepath.Join(path, "main.go")) {
		proj.Metadata["main"] = "."
	}
	return proj
}

// parseGoModuleName extracts the module name from go.mod.
func parseGoModuleName(goModPath string) string {
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return filepath.Base(filepath.Dir(goModPath))
	}

	re := regexp.MustCompile(`(?m)^module\s+(\S+)`)
	if m := re.FindSubmatch(data); len(m) > 1 {
		parts := strings.Split(string(m[1]), "/")
		return parts[len(parts)-1]
	}

	return filepath.Base(filepath.Dir(goModPath))
}

// detectNode checks for a Node.js project.
func detectNode(path string) *Project {
	packagePath := filepath.Join(path, "package.json")
	if _, err := os.Stat(packagePath); err != nil {
		return nil
	}

	proj := &Project{
		Path:           path,
		Type:           ProjectNode,
		Name:           parsePackageJsonName(packagePath),
		PackageManager: detectPackageManager(path),
		Metadata:       make(map[string]string),
	}

	if fileExists(filepath.Join(path, "tsconfig.json")) {
		proj.Metadata["typescript"] = "true"
	}
	if scripts := parsePackageJsonScripts(packagePath); len(scripts) > 0 {
		proj.Metadata["scripts"] = strings.Join(scripts, ",")
	}

	return proj
}

// parsePackageJsonName extracts the name from package.json.
func parsePackageJsonName(packagePath string) string {
	data, err := os.ReadFile(packagePath)
	if err != nil {
		return filepath.Base(filepath.Dir(packagePath))
	}

	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err == nil && pkg.Name != "" {
		return pkg.Name
	}

	return filepath.Base(filepath.Dir(packagePath))
}

// parsePackageJsonScripts returns available npm scripts.
func parsePackageJsonScripts(packagePath string) []string {
	data, err := os.ReadFile(packagePath)
	if err != nil {
		return nil
	}

	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}

	scripts := make([]string, 0, len(pkg.Scripts))
	for name := range pkg.Scripts {
		scripts = append(scripts, name)
	}
	return scripts
}

// detectPackageManager determines which package manager to use.
func detectPackageManager(path string) string {
	if fileExists(filepath.Join(path, "pnpm-lock.yaml")) {
		return "pnpm"
	}
	if fileExists(filepath.Join(path, "yarn.lock")) {
		return "yarn"
	}
	if fileExists(filepath.Join(path, "bun.lockb")) {
		return "bun"
	}
	return "npm"
}

// detectPython checks for a Python project.
func detectPython(path string) *Project {
	markers := []string{"pyproject.toml", "setup.py", "setup.cfg", "requirements.txt", "manage.py"}
	var marker string
	for _, m := range markers {
		if fileExists(filepath.Join(path, m)) {
			marker = m
			break
		}
	}
	if marker == "" {
		return nil
	}

	proj := &Project{
		Path:     path,
		Type:     ProjectPython,
		Name:     parsePythonProjectName(path, marker),
		Metadata: make(map[string]string),
	}
	if fileExists(filepath.Join(path, "manage.py")) {
		proj.Metadata["framework"] = "django"
	}
	if containsString(filepath.Join(path, "pyproject.toml"), "tool.poetry") {
		proj.Metadata["manager"] = "poetry"
	}
	return proj
}

// parsePythonProjectName tries to extract the project name.
func parsePythonProjectName(path, marker string) string {
	switch marker {
	case "pyproject.toml":
		if data, err := os.ReadFile(filepath.Join(path, marker)); err == nil {
			re := regexp.MustCompile(`(?m)^name\s*=\s*"([^"]+)"`)
			if m := re.FindSubmatch(data); len(m) > 1 {
				return string(m[1])
			}
		}
	case "setup.py":
		if data, err := os.ReadFile(filepath.Join(path, marker)); err == nil {
			re := regexp.MustCompile(`name\s*=\s*['"]([\w-]+)['"]`)
			if m := re.FindSubmatch(data); len(m) > 1 {
				return string(m[1])
			}
		}
	}
	return filepath.Base(path)
}

// Helper functions

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func containsString(path, substr string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), substr)
}
