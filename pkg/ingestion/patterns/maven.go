// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package patterns

import "encoding/xml"

// mavenPOM mirrors the subset of a pom.xml's shape this extractor cares
// about (spec §4.4: "parse groupId/artifactId/version for project and each
// declared dependency; flag scope and optional").
type mavenPOM struct {
	XMLName      xml.Name          `xml:"project"`
	GroupID      string            `xml:"groupId"`
	ArtifactID   string            `xml:"artifactId"`
	Version      string            `xml:"version"`
	Dependencies []mavenDependency `xml:"dependencies>dependency"`
}

type mavenDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}

// MavenArtifact is the parsed project coordinate plus its dependencies.
type MavenArtifact struct {
	GroupID      string
	ArtifactID   string
	Version      string
	Dependencies []MavenDependency
}

// MavenDependency is one declared dependency with its scope/optional flag.
type MavenDependency struct {
	GroupID    string
	ArtifactID string
	Version    string
	Scope      string // defaults to "compile" per Maven's own convention
	Optional   bool
}

// Coordinates returns the GAV string "groupId:artifactId:version", the
// identity key spec §3.1 assigns MavenArtifact nodes.
func (a MavenArtifact) Coordinates() string {
	return a.GroupID + ":" + a.ArtifactID + ":" + a.Version
}

// ParseMavenPOM parses an xml_block chunk whose root element is <project>.
// A chunk rooted at any other element makes xml.Unmarshal fail, and that
// error is returned.
func ParseMavenPOM(chunkText string) (MavenArtifact, error) {
	var pom mavenPOM
	if err := xml.Unmarshal([]byte(chunkText), &pom); err != nil {
		return MavenArtifact{}, err
	}

	artifact := MavenArtifact{
		GroupID:    pom.GroupID,
		ArtifactID: pom.ArtifactID,
		Version:    pom.Version,
	}
	for _, d := range pom.Dependencies {
		scope := d.Scope
		if scope == "" {
			scope = "compile"
		}
		artifact.Dependencies = append(artifact.Dependencies, MavenDependency{
			GroupID:    d.GroupID,
			ArtifactID: d.ArtifactID,
			Version:    d.Version,
			Scope:      scope,
			Optional:   d.Optional == "true",
		})
	}
	return artifact, nil
}

// ToFinding converts the project's own coordinates to a MavenArtifact
// Finding. The parsed Dependencies are not carried on the Finding, so the
// graph writer records no DEPENDS_ON edge for them; the only DEPENDS_ON
// edge it writes runs from the repository to this project artifact.
func (a MavenArtifact) ToFinding(filePath, chunkID string) Finding {
	return Finding{
		Kind:                 "MavenArtifact",
		Identity:             a.Coordinates(),
		BusinessPurpose:      "project artifact",
		MigrationComplexity:  ScoreComplexity("MavenArtifact", nil),
		SourceFilePath:       filePath,
		SourceChunkID:        chunkID,
	}
}
