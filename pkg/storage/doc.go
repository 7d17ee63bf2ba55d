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

// Package storage provides the two coupled knowledge stores the ingestion
// pipeline writes to and the retriever reads from:
//
//   - VectorStore: per-repository embedded collections (chromem-go), keyed
//     by CodeChunk id, holding (vector, metadata, text).
//   - GraphStore: a single embedded SQLite database holding the property
//     graph of repositories, files, chunks, framework-pattern nodes, and
//     their relationships.
//
// Both are embedded (no external server to run) and local to the data
// directory configured at startup. Neither store is safe to share across
// processes; one CIE process owns one data directory.
package storage
