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

// strutsActionSuperclassRe matches `class Foo extends ...Action` /
// `extends DispatchAction` style declarations (spec §4.4: "detect classes
// implementing Struts Action by superclass/interface name").
var strutsActionSuperclassRe = regexp.MustCompile(`class\s+(\w+)\s+extends\s+(\w*Action\w*)\b`)

// corbaImportRe flags CORBA client-call imports (spec §4.4: "detect CORBA
// client calls by imported package patterns").
var corbaImportRe = regexp.MustCompile(`import\s+org\.omg\.CORBA`)

// validationMethodRe matches common Struts/bean-validation method name
// shapes: validate(...), validateXxx(...).
var validationMethodRe = regexp.MustCompile(`\b(public|protected)\s+\w[\w<>\[\]]*\s+(validate\w*)\s*\(`)

// statefulFieldRe flags instance fields that suggest per-session state
// rather than pure request handling (a common Struts-Action anti-pattern
// this extractor treats as a complexity-raising signal).
var statefulFieldRe = regexp.MustCompile(`\bprivate\s+\w+\s+\w*[Ss]ession\w*\s*;`)

// AnalyzeJavaClass inspects a class-kind chunk's text for a Struts Action
// superclass. Returns the empty Finding when the class is not a Struts
// Action.
func AnalyzeJavaClass(filePath, chunkID, className, text string) (Finding, bool) {
	m := strutsActionSuperclassRe.FindStringSubmatch(text)
	if m == nil {
		return Finding{}, false
	}

	signals := []string{}
	if statefulFieldRe.MatchString(text) {
		signals = append(signals, SignalStateful)
	}
	if validationMethodRe.MatchString(text) {
		signals = append(signals, SignalValidation)
	}

	return Finding{
		Kind:                "StrutsAction",
		Identity:             m[1],
		BusinessPurpose:      "request handler (" + m[2] + ")",
		MigrationComplexity:  ScoreComplexity("StrutsAction", signals),
		SourceFilePath:       filePath,
		SourceChunkID:        chunkID,
		Props:                map[string]string{"superclass": m[2]},
	}, true
}

// AnalyzeJavaMethod inspects a method-kind chunk for validation-method and
// CORBA-client-call signals, producing a BusinessRule finding when either
// is present.
func AnalyzeJavaMethod(filePath, chunkID, methodName, text string) (Finding, bool) {
	isValidation := validationMethodRe.MatchString(text)
	isCorbaCall := corbaImportRe.MatchString(text) || strings.Contains(text, "org.omg.CORBA")
	if !isValidation && !isCorbaCall {
		return Finding{}, false
	}

	signals := []string{}
	purpose := "business logic"
	if isValidation {
		signals = append(signals, SignalValidation)
		purpose = "input validation"
	}
	if isCorbaCall {
		purpose = "CORBA service invocation"
	}
	if statefulFieldRe.MatchString(text) {
		signals = append(signals, SignalStateful)
	}

	return Finding{
		Kind:                "BusinessRule",
		Identity:             filePath + "#" + methodName,
		BusinessPurpose:      purpose,
		MigrationComplexity:  ScoreComplexity("BusinessRule", signals),
		SourceFilePath:       filePath,
		SourceChunkID:        chunkID,
	}, true
}
