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

// idlOperationRe matches a CORBA IDL operation signature inside an
// interface body: `<return_type> name(<params>);`, optionally preceded by
// "oneway". Attribute and constant declarations are not operations and are
// excluded by requiring a parenthesized parameter list.
var idlOperationRe = regexp.MustCompile(`(?m)^\s*(oneway\s+)?(\w[\w:]*)\s+(\w+)\s*\(([^)]*)\)\s*(raises\s*\([^)]*\))?\s*;`)

// IDLOperation is one operation signature extracted from an interface body.
type IDLOperation struct {
	Name       string
	ReturnType string
	Params     string
	Oneway     bool
}

// ParseIDLInterface extracts the interface name and its operations from a
// class-kind chunk emitted by parser_idl.go (spec §4.4: "extract interface
// declarations and their operation signatures").
func ParseIDLInterface(chunkName, chunkText string) (name string, ops []IDLOperation) {
	name = chunkName
	matches := idlOperationRe.FindAllStringSubmatch(chunkText, -1)
	for _, m := range matches {
		ops = append(ops, IDLOperation{
			Oneway:     strings.TrimSpace(m[1]) == "oneway",
			ReturnType: m[2],
			Name:       m[3],
			Params:     strings.TrimSpace(m[4]),
		})
	}
	return name, ops
}

// ToCORBAFinding converts an interface + its operations into a CORBAInterface
// Finding. Complexity is scored high when any operation is oneway, low when
// the interface declares no operations, and medium otherwise.
func ToCORBAFinding(filePath, chunkID, interfaceName string, ops []IDLOperation) Finding {
	signals := []string{}
	if len(ops) == 0 {
		signals = append(signals, SignalDataOnly)
	}
	for _, op := range ops {
		if op.Oneway {
			// A oneway (fire-and-forget) operation implies the server side
			// tracks delivery/state beyond a single request/response.
			signals = append(signals, SignalStateful)
			break
		}
	}

	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}

	return Finding{
		Kind:                "CORBAInterface",
		Identity:             interfaceName,
		BusinessPurpose:      "remote interface with " + strings.Join(names, ", "),
		MigrationComplexity:  ScoreComplexity("CORBAInterface", signals),
		SourceFilePath:       filePath,
		SourceChunkID:        chunkID,
		Props:                map[string]string{"operations": strings.Join(names, ",")},
	}
}
