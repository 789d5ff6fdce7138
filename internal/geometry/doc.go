// Package geometry provides the coordinate types and transforms shared by the
// document codec, the request builder and the reconciliation engine.
//
// Three frames are involved in a run:
//   - global: pixel coordinates of the full image
//   - region-local: coordinates relative to the selected region's origin
//   - patch-relative: coordinates of a cropped patch uploaded as a standalone
//     image, which coincide with region-local coordinates
//
// All arithmetic is float64. Integer truncation happens exactly once, when a
// coordinate is written into an exchange document (see Truncate).
package geometry
