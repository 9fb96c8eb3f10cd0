package ecosystem

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// GradleAdapter handles Gradle builds, preferring the project's wrapper.
type GradleAdapter struct{}

func (GradleAdapter) Kind() Kind { return KindGradle }

func (GradleAdapter) Signature() Signature {
	return Signature{
		Lockfiles: []string{"gradle.lockfile"},
		Manifests: []string{"build.gradle", "build.gradle.kts", "settings.gradle"},
	}
}

func (GradleAdapter) Plan(dir string, desc *BuildDescriptor) error {
	tool := "gradle"
	if fileExists(dir, "gradlew") {
		tool = "./gradlew"
	}
	desc.Tool = tool
	desc.ResolveCommand = []string{tool, "--no-daemon", "dependencies"}
	desc.BuildCommand = []string{tool, "--no-daemon", "build"}
	return nil
}

// gradleDependencyLine matches `implementation 'g:a:v'` and
// `testImplementation("g:a:v")` declarations.
var gradleDependencyLine = regexp.MustCompile(`^\s*(implementation|api|compileOnly|runtimeOnly|annotationProcessor|kapt|testImplementation|testRuntimeOnly|testCompileOnly|compile|testCompile)\s*\(?\s*["']([^"':]+):([^"':]+)(?::([^"']+))?["']`)

func (GradleAdapter) Dependencies(dir string) ([]Dependency, error) {
	manifest := "build.gradle"
	data, err := readManifest(dir, manifest)
	if err == ErrNoManifest {
		manifest = "build.gradle.kts"
		data, err = readManifest(dir, manifest)
	}
	if err != nil {
		return nil, err
	}

	var deps []Dependency
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		m := gradleDependencyLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		deps = append(deps, Dependency{
			Name:     m[2] + ":" + m[3],
			Version:  m[4],
			Scope:    gradleScope(m[1]),
			Manifest: manifest,
		})
	}
	return deps, sc.Err()
}

func gradleScope(configuration string) string {
	switch {
	case strings.HasPrefix(configuration, "test"):
		return ScopeTest
	case configuration == "compileOnly" || configuration == "annotationProcessor" || configuration == "kapt":
		return ScopeBuild
	default:
		return ScopeRuntime
	}
}
