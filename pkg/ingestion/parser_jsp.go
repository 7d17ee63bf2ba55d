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

package ingestion

import "strings"

// parseJSP splits a JSP file into scriptlet chunks (<% %>, <%! %>, <%= %>)
// and windows the surrounding markup as xml_block chunks (spec §4.3, §4.4).
// There is no Tree-sitter grammar for JSP in this pack, so scriptlet
// boundaries are found with a small hand-rolled scanner rather than a
// parser: JSP delimiters are fixed ASCII sequences that never nest.
func (p *TreeSitterParser) parseJSP(fileInfo FileInfo, repositoryName string, content []byte) *ParseResult {
	text := string(content)
	lineOf := newLineIndex(text)

	var chunks []CodeChunk
	pos := 0
	markupStart := 0

	flushMarkup := func(start, end int) {
		if end <= start {
			return
		}
		segment := text[start:end]
		if strings.TrimSpace(segment) == "" {
			return
		}
		startLine := lineOf.lineAt(start)
		endLine := lineOf.lineAt(end)
		chunks = append(chunks, CodeChunk{
			ID:             GenerateChunkID(repositoryName, fileInfo.Path, startLine, endLine, string(ChunkKindXMLBlock)),
			RepositoryName: repositoryName,
			FilePath:       fileInfo.Path,
			Language:       "jsp",
			Kind:           ChunkKindXMLBlock,
			Text:           segment,
			StartLine:      startLine,
			EndLine:        endLine,
		})
	}

	for pos < len(text) {
		open := strings.Index(text[pos:], "<%")
		if open < 0 {
			break
		}
		open += pos
		close := strings.Index(text[open:], "%>")
		if close < 0 {
			break
		}
		close += open + 2

		flushMarkup(markupStart, open)

		scriptlet := text[open:close]
		startLine := lineOf.lineAt(open)
		endLine := lineOf.lineAt(close)
		chunks = append(chunks, CodeChunk{
			ID:             GenerateChunkID(repositoryName, fileInfo.Path, startLine, endLine, string(ChunkKindJSPScriptlet)),
			RepositoryName: repositoryName,
			FilePath:       fileInfo.Path,
			Language:       "jsp",
			Kind:           ChunkKindJSPScriptlet,
			Name:           jspScriptletTagKind(scriptlet),
			Text:           scriptlet,
			StartLine:      startLine,
			EndLine:        endLine,
		})

		pos = close
		markupStart = close
	}
	flushMarkup(markupStart, len(text))

	for i := range chunks {
		if truncated, ok := p.truncate(chunks[i].Text); ok {
			chunks[i].Text = truncated
		}
	}

	return &ParseResult{
		FilePath: fileInfo.Path,
		Language: "jsp",
		Chunks:   chunks,
	}
}

// jspScriptletTagKind labels a scriptlet by its delimiter form: "<%!" is a
// declaration, "<%=" is an expression, plain "<%" is a code scriptlet.
func jspScriptletTagKind(scriptlet string) string {
	switch {
	case strings.HasPrefix(scriptlet, "<%!"):
		return "declaration"
	case strings.HasPrefix(scriptlet, "<%="):
		return "expression"
	default:
		return "scriptlet"
	}
}

// lineIndex maps a byte offset into a string to a 1-based line number.
type lineIndex struct {
	offsets []int // offsets[i] = byte offset where line i+1 starts
}

func newLineIndex(text string) *lineIndex {
	offsets := []int{0}
	for i, r := range text {
		if r == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return &lineIndex{offsets: offsets}
}

func (li *lineIndex) lineAt(offset int) int {
	// Binary search for the last line-start offset <= offset.
	lo, hi := 0, len(li.offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.offsets[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
