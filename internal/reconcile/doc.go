// Package reconcile merges polygons returned by the model server into the
// local annotation collection.
//
// Two policies exist. Override replaces every annotation of the model's labels
// whose centroid lies in the region. Additive keeps existing annotations and
// only clears transient markers, keeping the Positive and Negative markers
// that drive the next interactive run.
package reconcile
