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

// windowChunks implements the raw-text windowing fallback (spec §4.3): the
// file is split into chunks of at most maxLines lines, with overlapLines of
// repeated context between consecutive windows. Used both by the
// simplified Parser and as the tree-sitter parser's fallback when AST
// parsing fails for a file whose language has no registered grammar.
func windowChunks(repositoryName, filePath, language string, kind ChunkKind, lines []string, maxLines, overlapLines int) []CodeChunk {
	if len(lines) == 0 {
		return nil
	}
	if maxLines <= 0 {
		maxLines = 400
	}
	if overlapLines < 0 || overlapLines >= maxLines {
		overlapLines = 0
	}

	var chunks []CodeChunk
	start := 0
	for start < len(lines) {
		end := start + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "\n")
		startLine := start + 1
		endLine := end
		chunks = append(chunks, CodeChunk{
			ID:             GenerateChunkID(repositoryName, filePath, startLine, endLine, string(kind)),
			RepositoryName: repositoryName,
			FilePath:       filePath,
			Language:       language,
			Kind:           kind,
			Text:           text,
			StartLine:      startLine,
			EndLine:        endLine,
		})

		if end == len(lines) {
			break
		}
		start = end - overlapLines
		if start <= (end - maxLines) {
			// overlapLines configured too close to maxLines; avoid an infinite loop.
			start = end
		}
	}
	return chunks
}

// splitOversizedChunks implements the "chunks exceeding an upper byte cap
// are split at the nearest line boundary" edge policy (spec §4.3).
func splitOversizedChunks(repositoryName string, chunks []CodeChunk, maxBytes int) []CodeChunk {
	if maxBytes <= 0 {
		return chunks
	}

	out := make([]CodeChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Text) <= maxBytes {
			out = append(out, c)
			continue
		}

		lines := strings.Split(c.Text, "\n")
		var buf strings.Builder
		bufStartLine := c.StartLine
		lineOffset := 0

		flush := func(endOffset int) {
			if buf.Len() == 0 {
				return
			}
			startLine := bufStartLine
			endLine := c.StartLine + endOffset
			out = append(out, CodeChunk{
				ID:             GenerateChunkID(repositoryName, c.FilePath, startLine, endLine, string(c.Kind)),
				RepositoryName: repositoryName,
				FilePath:       c.FilePath,
				Language:       c.Language,
				Kind:           c.Kind,
				Name:           c.Name,
				Text:           buf.String(),
				StartLine:      startLine,
				EndLine:        endLine,
			})
			buf.Reset()
		}

		for i, line := range lines {
			if buf.Len() > 0 && buf.Len()+len(line)+1 > maxBytes {
				flush(lineOffset - 1)
				bufStartLine = c.StartLine + lineOffset
			}
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
			lineOffset = i + 1
		}
		flush(len(lines) - 1)
	}
	return out
}

// mergeUndersizedChunks implements the "chunks below a lower byte cap are
// merged with the previous chunk of the same kind, preserving line-span as
// the union" edge policy (spec §4.3). Chunks must already be in file order.
func mergeUndersizedChunks(repositoryName string, chunks []CodeChunk, minBytes int) []CodeChunk {
	if minBytes <= 0 || len(chunks) == 0 {
		return chunks
	}

	out := make([]CodeChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if len(c.Text) < minBytes && prev.Kind == c.Kind && prev.FilePath == c.FilePath {
				prev.Text = prev.Text + "\n" + c.Text
				if c.EndLine > prev.EndLine {
					prev.EndLine = c.EndLine
				}
				prev.ID = GenerateChunkID(repositoryName, prev.FilePath, prev.StartLine, prev.EndLine, string(prev.Kind))
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
