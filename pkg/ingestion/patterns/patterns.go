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

// Package patterns is the Business-Pattern Extractor (C4, spec §4.4): it
// recognizes legacy framework constructs (Struts actions, JSP components,
// CORBA interfaces, Maven artifacts) in chunk text and promotes them to
// first-class findings with a deterministic migration-complexity score.
//
// This package takes plain strings (file path, chunk text, chunk kind) and
// returns Findings rather than importing pkg/ingestion's CodeChunk type:
// the orchestrator (in pkg/ingestion) calls into here per chunk and maps
// the result back onto CodeChunk fields and storage.PatternNode writes,
// keeping this package free of a dependency back on its only caller.
package patterns

// Finding is one recognized framework-pattern occurrence (spec §3.1's
// StrutsAction / CORBAInterface / JSPComponent / BusinessRule /
// MavenArtifact nodes, unified: Kind disambiguates which).
type Finding struct {
	Kind                string // "StrutsAction", "CORBAInterface", "JSPComponent", "BusinessRule", "MavenArtifact"
	Identity            string // canonical name within Kind (spec §3.1)
	BusinessPurpose     string
	MigrationComplexity string // "low", "medium", "high"
	SourceFilePath      string
	SourceChunkID       string

	// ForwardTargets holds StrutsAction forward-name -> path mappings.
	ForwardTargets map[string]string

	// Props carries kind-specific extra fields (CORBA operation names, a
	// Java superclass, a Struts action type, JSP taglibs) for the graph
	// writer to attach to the Link call's props.
	Props map[string]string
}

// ChunkAnnotation is what the extractor contributes back onto a CodeChunk:
// the business-domain and framework-pattern tags plus complexity score
// spec §3.1 attaches directly to the chunk (as opposed to a separate
// Finding/PatternNode).
type ChunkAnnotation struct {
	BusinessDomain      string
	FrameworkPattern    string
	MigrationComplexity string
}
