// Package asap reads and writes ASAP vector-annotation documents.
//
// The same schema serves three purposes:
//   - the label document sent to the model server (Encode), scoped to a
//     region and written in region-local integer coordinates
//   - the inference response returned by the server (Decode)
//   - the on-disk snapshot of a whole annotation collection (Snapshot and
//     LoadCollection), written in global coordinates
//
// The schema is fixed, so documents are mapped onto plain encoding/xml
// structs rather than a generic element tree.
package asap
