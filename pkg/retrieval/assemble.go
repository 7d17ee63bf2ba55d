// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// estimateTokens approximates token count from character count; code and
// prose both tokenize at roughly 4 characters per token.
func estimateTokens(text string) int {
	return len(text)/4 + 1
}

// priority is the assembly step's chunk ordering key (spec §4.10 step 3:
// "prioritize chunks by (score × importance)"). A chunk with no recorded
// importance score (the zero value) is treated as importance 1 rather than
// zeroing its vector score out entirely.
func priority(rc retrievedChunk) float64 {
	importance := rc.Node.ImportanceScore
	if importance <= 0 {
		importance = 1
	}
	return rc.Score * importance
}

// assemble orders retained chunks by priority, accumulates their text
// against a token budget, and renders the prompt fragment with inline
// citations plus structural bullets for the graph-expansion neighbors and,
// in architecture mode, the pattern-finding summary (spec §4.10 step 3).
// It returns the fragment, the citation list in the same order chunks were
// included, and how many over-budget chunks were dropped.
func assemble(exp *expansion, tokenBudget int) (string, []Citation, int) {
	primary := append([]retrievedChunk(nil), exp.primary...)
	sort.SliceStable(primary, func(i, j int) bool {
		pi, pj := priority(primary[i]), priority(primary[j])
		if pi != pj {
			return pi > pj
		}
		return primary[i].Node.ID < primary[j].Node.ID
	})

	if tokenBudget <= 0 {
		tokenBudget = 6000
	}

	var b strings.Builder
	citations := make([]Citation, 0, len(primary))
	used := 0
	dropped := 0

	for _, rc := range primary {
		tokens := estimateTokens(rc.Text)
		if used+tokens > tokenBudget {
			dropped++
			continue
		}
		fmt.Fprintf(&b, "### %s (%s) [score=%.3f]\n```\n%s\n```\n\n", rc.Node.FilePath, rc.Node.RepositoryName, rc.Score, rc.Text)
		used += tokens
		citations = append(citations, Citation{
			ChunkID:        rc.Node.ID,
			RepositoryName: rc.Node.RepositoryName,
			FilePath:       rc.Node.FilePath,
			StartLine:      rc.Node.StartLine,
			EndLine:        rc.Node.EndLine,
			Score:          rc.Score,
		})
	}

	if len(exp.neighbors) > 0 {
		b.WriteString("### Related structure\n")
		for _, n := range exp.neighbors {
			fmt.Fprintf(&b, "- %s %s (%s:%d-%d)\n", n.Node.Kind, n.Node.Name, n.Node.FilePath, n.Node.StartLine, n.Node.EndLine)
		}
		b.WriteString("\n")
	}

	if len(exp.patterns) > 0 {
		b.WriteString("### Business/framework patterns\n")
		for _, p := range exp.patterns {
			fmt.Fprintf(&b, "- [%s] %s: %s (migration complexity: %s)\n", p.Kind, p.Identity, p.BusinessPurpose, p.MigrationComplexity)
		}
	}

	return b.String(), citations, dropped
}
