package ecosystem

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// MavenAdapter handles Maven projects. Plain Java sources without a build file
// are treated as heuristic Maven candidates and compiled with javac.
type MavenAdapter struct{}

func (MavenAdapter) Kind() Kind { return KindMaven }

func (MavenAdapter) Signature() Signature {
	return Signature{
		Manifests:  []string{"pom.xml"},
		Extensions: []string{".java"},
	}
}

func (MavenAdapter) Plan(dir string, desc *BuildDescriptor) error {
	if desc.Specificity == SpecificityHeuristic {
		desc.Tool = "javac"
		desc.ResolveCommand = nil
		desc.BuildCommand = append([]string{"javac", "-d", ".repobuilder-classes"}, baseNames(desc.ManifestPaths)...)
		return nil
	}
	tool := "mvn"
	if fileExists(dir, "mvnw") {
		tool = "./mvnw"
	}
	desc.Tool = tool
	desc.ResolveCommand = []string{tool, "-B", "-q", "dependency:resolve"}
	desc.BuildCommand = []string{tool, "-B", "-q", "package", "-DskipTests=false"}
	return nil
}

type pomProject struct {
	XMLName      xml.Name        `xml:"project"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
	Management   []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   bool   `xml:"optional"`
}

func (MavenAdapter) Dependencies(dir string) ([]Dependency, error) {
	data, err := readManifest(dir, "pom.xml")
	if err != nil {
		return nil, err
	}
	var pom pomProject
	if err := xml.Unmarshal(data, &pom); err != nil {
		return nil, fmt.Errorf("parse pom.xml: %w", err)
	}
	deps := make([]Dependency, 0, len(pom.Dependencies))
	for _, d := range pom.Dependencies {
		deps = append(deps, Dependency{
			Name:     strings.TrimSpace(d.GroupID) + ":" + strings.TrimSpace(d.ArtifactID),
			Version:  strings.TrimSpace(d.Version),
			Scope:    mavenScope(d),
			Manifest: "pom.xml",
		})
	}
	return deps, nil
}

func mavenScope(d pomDependency) string {
	if d.Optional {
		return ScopeOptional
	}
	switch strings.TrimSpace(d.Scope) {
	case "test":
		return ScopeTest
	case "provided", "system":
		return ScopeBuild
	default:
		return ScopeRuntime
	}
}
