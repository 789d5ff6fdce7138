// Package model defines the annotation data shared by the codec, the request
// builder and the reconciliation engine.
//
// This package contains the following main types:
//   - Annotation: a labelled polygon, interaction marker or cell
//   - Collection: the capability the reconciliation engine mutates
//   - Hierarchy: an in-memory Collection used by the CLI and tests
//   - Labels: a LabelRegistry that resolves or creates class labels
//   - RunReport: the outcome of a single inference run
//   - Defaults: values remembered between runs to pre-populate the next one
//
// Label storage identity is case-sensitive. Only the Positive and Negative
// interaction roles are matched case-insensitively.
package model
