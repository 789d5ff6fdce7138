// Package pipeline runs one region inference as a sequence of steps.
//
// A Run carries the image, region, model and local collection through the
// steps: label export, image residency planning, request building, optional
// datastore upload and label sync, inference, response decoding and
// reconciliation. Nothing is written to the server before the request has
// been validated. Each step reads what earlier steps left on the Run and adds
// its own results, including counts on the run's RunReport.
//
// The collection is only touched by the last step, after the response has
// been fully decoded, so a failure or cancellation at any earlier point
// leaves it unchanged. Temporary files created along the way are removed
// when Execute returns.
//
// BatchProcessor runs several images concurrently with errgroup, one Run and
// one collection per image.
package pipeline
