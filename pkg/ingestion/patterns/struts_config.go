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

import (
	"encoding/xml"
	"strings"
)

// StrutsActionMapping is one <action> element parsed out of a
// struts-config.xml xml_block chunk (spec §4.4: "parse <action> mappings
// into StrutsAction nodes with forward targets").
type StrutsActionMapping struct {
	Path     string
	Type     string
	Forwards map[string]string // forward name -> path
}

// ParseStrutsConfigActions scans an xml_block chunk's text (which may be
// the whole <action-mappings> element or any fragment containing <action>
// elements) for action mappings. It walks tokens rather than
// xml.Unmarshal-ing a fixed struct, since the fragment's enclosing element
// name varies by which top-level block parser_xml.go happened to chunk.
func ParseStrutsConfigActions(chunkText string) []StrutsActionMapping {
	decoder := xml.NewDecoder(strings.NewReader(chunkText))
	decoder.Strict = false

	var actions []StrutsActionMapping
	var current *StrutsActionMapping

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "action":
				a := StrutsActionMapping{Forwards: make(map[string]string)}
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "path":
						a.Path = attr.Value
					case "type":
						a.Type = attr.Value
					}
				}
				current = &a
			case "forward":
				if current == nil {
					continue
				}
				var name, path string
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "name":
						name = attr.Value
					case "path":
						path = attr.Value
					}
				}
				if name != "" {
					current.Forwards[name] = path
				}
			}
		case xml.EndElement:
			if t.Name.Local == "action" && current != nil {
				actions = append(actions, *current)
				current = nil
			}
		}
	}
	return actions
}

// ToFinding converts a parsed action mapping to a Finding. filePath/chunkID
// identify the xml_block chunk the mapping was found in.
func (a StrutsActionMapping) ToFinding(filePath, chunkID string) Finding {
	signals := []string{}
	if len(a.Forwards) > 2 {
		// Many forward targets suggest branching, stateful request handling.
		signals = append(signals, SignalStateful)
	}
	return Finding{
		Kind:                "StrutsAction",
		Identity:             a.Path,
		BusinessPurpose:      "routes " + a.Path + " to " + a.Type,
		MigrationComplexity:  ScoreComplexity("StrutsAction", signals),
		SourceFilePath:       filePath,
		SourceChunkID:        chunkID,
		ForwardTargets:       a.Forwards,
		Props:                map[string]string{"action_type": a.Type},
	}
}
