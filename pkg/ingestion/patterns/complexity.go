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

// Signal names ScoreComplexity recognizes. A caller passes whichever subset
// it detected; unrecognized signals are ignored rather than rejected, so
// new detectors can add signals without widening this switch.
const (
	SignalStateful   = "stateful"   // holds session/conversational state across calls
	SignalValidation = "validation" // validation logic bound to a framework lifecycle
	SignalDataOnly   = "data-only"  // pure data/markup, no behavior
)

// ScoreComplexity is the deterministic function of finding kind and textual
// signals spec §4.4 requires ("does not change on re-ingest"): same kind +
// same signal set always yields the same ordinal.
func ScoreComplexity(kind string, signals []string) string {
	has := func(name string) bool {
		for _, s := range signals {
			if s == name {
				return true
			}
		}
		return false
	}

	switch kind {
	case "MavenArtifact":
		// A dependency coordinate is pure data regardless of signals.
		return "low"

	case "JSPComponent":
		switch {
		case has(SignalStateful):
			return "high"
		case has(SignalDataOnly):
			return "low"
		default:
			return "medium"
		}

	case "StrutsAction":
		if has(SignalStateful) {
			return "high"
		}
		return "medium"

	case "CORBAInterface":
		switch {
		case has(SignalStateful):
			return "high"
		case has(SignalDataOnly):
			return "low"
		default:
			return "medium"
		}

	case "BusinessRule":
		switch {
		case has(SignalStateful):
			return "high"
		case has(SignalValidation):
			return "medium"
		default:
			return "low"
		}

	default:
		return "medium"
	}
}
