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
	"bytes"
	"os"
)

// LanguageStats is the per-language file/line count the Repository
// Analyzer (C2) reports as part of a RepoSummary.
type LanguageStats struct {
	Files int
	Lines int
}

// RepoSummary is the output of analyze(tree) (spec §4.2): the loader has
// already filtered by exclude globs and max file size, classified
// language by extension, and counted files; this adds the LOC pass the
// loader itself doesn't do, since line counting means reading every file
// a second time and the loader's job is the filtering walk, not content
// inspection.
type RepoSummary struct {
	RootPath      string
	FileCount     int
	TotalSize     int64
	Languages     map[string]LanguageStats
	SkipReasons   map[string]int
}

// AnalyzeRepository builds a RepoSummary from a loader's result, driving
// the parser's work list downstream (spec §4.2: "large binaries and
// excluded paths never enter later stages" — already true of loadResult.Files).
func AnalyzeRepository(loadResult *LoadResult) RepoSummary {
	summary := RepoSummary{
		RootPath:    loadResult.RootPath,
		FileCount:   loadResult.FileCount,
		TotalSize:   loadResult.TotalSize,
		Languages:   make(map[string]LanguageStats),
		SkipReasons: loadResult.SkipReasons,
	}

	for _, f := range loadResult.Files {
		lang := f.Language
		if lang == "" {
			lang = "unknown"
		}
		stats := summary.Languages[lang]
		stats.Files++
		stats.Lines += countLines(f.FullPath)
		summary.Languages[lang] = stats
	}

	return summary
}

// countLines returns a best-effort line count; unreadable files count as 0
// lines rather than failing the analyzing stage over one bad file.
func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return 0
	}
	return bytes.Count(data, []byte("\n")) + 1
}
