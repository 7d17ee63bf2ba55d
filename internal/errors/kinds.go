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

package errors

// Kind is the ingestion error taxonomy. It is not a Go type per error
// (UserError remains the single carrier type); Kind is attached to a
// UserError so the orchestrator can apply the per-kind policy without
// string-matching messages.
type Kind string

const (
	KindSourceUnavailable   Kind = "SourceUnavailable"
	KindParserError         Kind = "ParserError"
	KindEmbeddingBatchError Kind = "EmbeddingBatchError"
	KindVectorStoreWrite    Kind = "VectorStoreWriteError"
	KindGraphStoreWrite     Kind = "GraphStoreWriteError"
	KindDimensionMismatch   Kind = "DimensionMismatch"
	KindValidationMismatch  Kind = "ValidationMismatch"
	KindCancelled           Kind = "Cancelled"
	KindConfigInvalid       Kind = "ConfigInvalid"
)

// Recoverable reports whether the orchestrator should continue the task
// after recording this kind of error (spec §7 propagation rules).
func (k Kind) Recoverable() bool {
	switch k {
	case KindParserError, KindEmbeddingBatchError, KindValidationMismatch:
		return true
	default:
		return false
	}
}

// StageError is a per-item error recorded against a task's Status Bus
// record (spec §4.9 `errors: [{stage, kind, message, file_path?, recoverable}]`).
type StageError struct {
	Stage       string `json:"stage"`
	Kind        Kind   `json:"kind"`
	Message     string `json:"message"`
	FilePath    string `json:"file_path,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// NewStageError builds a StageError, deriving Recoverable from Kind.
func NewStageError(stage string, kind Kind, message, filePath string) StageError {
	return StageError{
		Stage:       stage,
		Kind:        kind,
		Message:     message,
		FilePath:    filePath,
		Recoverable: kind.Recoverable(),
	}
}

// KindedError pairs a UserError with a taxonomy Kind, kept separate from
// Cause so callers can still set a human-readable cause independently.
type KindedError struct {
	*UserError
	Kind Kind
}

// NewSourceUnavailableError: cloning stage, fatal for the task (spec §7).
func NewSourceUnavailableError(msg, cause string, err error) *KindedError {
	return &KindedError{
		UserError: NewNetworkError(msg, cause, "Verify the source URL/path and credentials, then retry.", err),
		Kind:      KindSourceUnavailable,
	}
}

// NewParserErrorKind: parsing stage, per-file warning, skip file, continue.
func NewParserErrorKind(msg, cause, filePath string, err error) *KindedError {
	return &KindedError{
		UserError: NewInputError(msg, cause, "The file was skipped; fix its syntax or add it to exclude_globs."),
		Kind:      KindParserError,
	}
}

// NewEmbeddingBatchErrorKind: embedding stage, retry-then-zero-vector policy.
func NewEmbeddingBatchErrorKind(msg, cause string, err error) *KindedError {
	return &KindedError{
		UserError: NewNetworkError(msg, cause, "Check the embedding provider's availability.", err),
		Kind:      KindEmbeddingBatchError,
	}
}

// NewVectorStoreWriteErrorKind: storing stage, retry with backoff, then stage-fatal.
func NewVectorStoreWriteErrorKind(msg, cause string, err error) *KindedError {
	return &KindedError{
		UserError: NewDatabaseError(msg, cause, "Check the vector store's health and disk space.", err),
		Kind:      KindVectorStoreWrite,
	}
}

// NewGraphStoreWriteErrorKind: storing stage, retry with backoff, then stage-fatal.
func NewGraphStoreWriteErrorKind(msg, cause string, err error) *KindedError {
	return &KindedError{
		UserError: NewDatabaseError(msg, cause, "Check the graph store's health and disk space.", err),
		Kind:      KindGraphStoreWrite,
	}
}

// NewDimensionMismatchErrorKind: pre-storing, drop-and-recreate once, else stage-fatal.
func NewDimensionMismatchErrorKind(msg, cause string) *KindedError {
	return &KindedError{
		UserError: NewDatabaseError(msg, cause, "The collection was recreated with the new dimension.", nil),
		Kind:      KindDimensionMismatch,
	}
}

// NewValidationMismatchErrorKind: validating stage, recorded as warning, terminal completed_with_warnings.
func NewValidationMismatchErrorKind(msg, cause string) *KindedError {
	return &KindedError{
		UserError: NewInputError(msg, cause, "Inspect embedding_failed chunks and cross-store counts."),
		Kind:      KindValidationMismatch,
	}
}

// NewCancelledErrorKind: any stage, terminal failed(cancelled), no cleanup.
func NewCancelledErrorKind(msg string) *KindedError {
	return &KindedError{
		UserError: NewInputError(msg, "A cancel signal was received.", "Re-submit the ingest task if this was unintended."),
		Kind:      KindCancelled,
	}
}

// NewConfigInvalidErrorKind: startup only, refuse to admit new tasks.
func NewConfigInvalidErrorKind(msg, cause string, err error) *KindedError {
	return &KindedError{
		UserError: NewConfigError(msg, cause, "Fix the configuration and restart.", err),
		Kind:      KindConfigInvalid,
	}
}
