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
	"fmt"
	"os"
	"strings"
)

// ParseFile implements CodeParser for the simplified (non-AST) fallback
// parser: the whole file is windowed into raw_text chunks (spec §4.3).
// Empty files produce zero chunks.
func (p *Parser) ParseFile(fileInfo FileInfo, repositoryName string) (*ParseResult, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(content) == 0 {
		return &ParseResult{FilePath: fileInfo.Path, Language: fileInfo.Language}, nil
	}

	lines := strings.Split(string(content), "\n")
	chunks := windowChunks(repositoryName, fileInfo.Path, fileInfo.Language, ChunkKindRawText, lines, p.maxLines, p.overlapLines)

	for i := range chunks {
		if text, truncated := p.truncate(chunks[i].Text); truncated {
			chunks[i].Text = text
		}
	}

	return &ParseResult{
		FilePath: fileInfo.Path,
		Language: fileInfo.Language,
		Chunks:   chunks,
	}, nil
}

func (p *Parser) truncate(text string) (string, bool) {
	if int64(len(text)) <= p.maxCodeTextSize {
		return text, false
	}
	p.truncatedCount++
	return text[:p.maxCodeTextSize], true
}
