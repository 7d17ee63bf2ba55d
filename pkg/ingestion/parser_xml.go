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

import (
	"encoding/xml"
	"strings"
)

// parseXML splits an XML document into one xml_block chunk per top-level
// child element (spec §4.3's "tag block" semantic boundary). It uses
// encoding/xml's tokenizer purely to find element boundaries; the
// business-level extraction of <action> mappings, POM coordinates, etc.
// happens downstream in the business-pattern extractor (C4), which
// receives these chunks as its input.
func (p *TreeSitterParser) parseXML(fileInfo FileInfo, repositoryName string, content []byte) *ParseResult {
	text := string(content)
	lineOf := newLineIndex(text)

	decoder := xml.NewDecoder(strings.NewReader(text))
	decoder.Strict = false

	var chunks []CodeChunk
	var warnings []string
	depth := 0
	var topStartOffset int64

	for {
		offsetBefore := decoder.InputOffset()
		tok, err := decoder.Token()
		if err != nil {
			if len(chunks) == 0 {
				warnings = append(warnings, "xml_parse_error: "+err.Error())
			}
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				topStartOffset = offsetBefore
			}
			depth++
			_ = t
		case xml.EndElement:
			depth--
			if depth == 0 {
				end := decoder.InputOffset()
				start := int(topStartOffset)
				if end > int64(len(text)) {
					end = int64(len(text))
				}
				segment := text[start:end]
				startLine := lineOf.lineAt(start)
				endLine := lineOf.lineAt(int(end))
				chunks = append(chunks, CodeChunk{
					ID:             GenerateChunkID(repositoryName, fileInfo.Path, startLine, endLine, string(ChunkKindXMLBlock)),
					RepositoryName: repositoryName,
					FilePath:       fileInfo.Path,
					Language:       fileInfo.Language,
					Kind:           ChunkKindXMLBlock,
					Name:           t.Name.Local,
					Text:           segment,
					StartLine:      startLine,
					EndLine:        endLine,
				})
			}
		}
	}

	if len(chunks) == 0 {
		lines := strings.Split(text, "\n")
		chunks = windowChunks(repositoryName, fileInfo.Path, fileInfo.Language, ChunkKindRawText, lines, 400, 10)
	}

	for i := range chunks {
		if truncated, ok := p.truncate(chunks[i].Text); ok {
			chunks[i].Text = truncated
		}
	}

	return &ParseResult{
		FilePath: fileInfo.Path,
		Language: fileInfo.Language,
		Chunks:   chunks,
		Warnings: warnings,
	}
}
