// Package infer builds inference requests for a MONAI Label style model server.
//
// A run starts by planning where the pixels come from (Plan): the image may
// already be resident on the server, it may be a flat image that is uploaded
// whole, or a patch covering the region is rendered and uploaded instead. The
// resulting Target fixes the offset between global coordinates and the
// coordinates the server will answer in.
//
// Build then collects interaction points from the annotation set, applies the
// model's validation rules and assembles the Request.
package infer
