// Package monailabel is an HTTP client for a MONAI Label server.
//
// It covers the endpoints an annotation tool needs to run region inference:
// server info, datastore image lookup and upload, label upload and inference
// with ASAP output. Requests can be routed through a SOCKS5 proxy and carry
// extra headers such as Authorization.
package monailabel
