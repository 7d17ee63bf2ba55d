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
	"regexp"
	"strings"
)

// strutsTagRe matches Struts HTML/logic/bean taglib usages, e.g.
// <html:form>, <logic:iterate>, <bean:write>.
var strutsTagRe = regexp.MustCompile(`<(html|logic|bean|tiles):([a-zA-Z]+)`)

// sessionSignalRe flags scriptlet text that reads or writes HttpSession,
// the textual signal for "stateful" per spec §4.4's business-purpose
// heuristics over tag/scriptlet content.
var sessionSignalRe = regexp.MustCompile(`\b(session\.(get|set|invalidate)Attribute|HttpSession)\b`)

// AnalyzeJSPMarkup inspects an xml_block chunk from a JSP file (the
// surrounding-markup chunks parser_jsp.go windows) for Struts taglib usage.
// Returns the empty Finding (Kind == "") when no Struts tags are present.
func AnalyzeJSPMarkup(filePath, chunkID, markup string) (Finding, bool) {
	matches := strutsTagRe.FindAllStringSubmatch(markup, -1)
	if len(matches) == 0 {
		return Finding{}, false
	}

	tags := make(map[string]bool)
	for _, m := range matches {
		tags[m[1]+":"+m[2]] = true
	}
	names := make([]string, 0, len(tags))
	for t := range tags {
		names = append(names, t)
	}

	purpose := jspBusinessPurpose(names)
	signals := []string{}
	if sessionSignalRe.MatchString(markup) {
		signals = append(signals, SignalStateful)
	}

	return Finding{
		Kind:                "JSPComponent",
		Identity:             filePath,
		BusinessPurpose:      purpose,
		MigrationComplexity:  ScoreComplexity("JSPComponent", signals),
		SourceFilePath:       filePath,
		SourceChunkID:        chunkID,
		Props:                map[string]string{"taglibs": strings.Join(names, ",")},
	}, true
}

// jspBusinessPurpose infers a short business-purpose label from the set of
// Struts taglib names present — forms submit data, iterate/write render
// data, tiles compose layout.
func jspBusinessPurpose(taglibNames []string) string {
	hasForm, hasIterate, hasTiles := false, false, false
	for _, n := range taglibNames {
		switch {
		case strings.HasPrefix(n, "html:form") || strings.Contains(n, "html:text") || strings.Contains(n, "html:submit"):
			hasForm = true
		case strings.HasPrefix(n, "logic:iterate") || strings.HasPrefix(n, "bean:write"):
			hasIterate = true
		case strings.HasPrefix(n, "tiles:"):
			hasTiles = true
		}
	}
	switch {
	case hasForm && hasIterate:
		return "data entry and listing view"
	case hasForm:
		return "data entry form"
	case hasIterate:
		return "listing/report view"
	case hasTiles:
		return "layout composition"
	default:
		return "presentation fragment"
	}
}

// AnnotateJSPScriptlet classifies a jsp_scriptlet chunk's business domain
// and complexity from its content, for chunk-level annotation (spec §3.1's
// chunk business_domain/framework_pattern/migration_complexity tags).
func AnnotateJSPScriptlet(scriptletKindName, text string) ChunkAnnotation {
	signals := []string{}
	if sessionSignalRe.MatchString(text) {
		signals = append(signals, SignalStateful)
	}
	if scriptletKindName == "declaration" {
		// A <%! %> declaration defines instance state shared across requests.
		signals = append(signals, SignalStateful)
	}

	return ChunkAnnotation{
		BusinessDomain:      "presentation",
		FrameworkPattern:    "jsp_scriptlet:" + scriptletKindName,
		MigrationComplexity: ScoreComplexity("JSPComponent", signals),
	}
}
