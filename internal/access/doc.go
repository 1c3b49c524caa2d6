// Package access defines the value types of the graded access resolution
// model: payload descriptors, readiness levels, resolved manifests, and the
// render collaborator contract. Everything here is immutable value data;
// payloads are replaced wholesale, never mutated in place.
package access
