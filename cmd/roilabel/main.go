// Package main provides the entry point for the roilabel CLI.
//
// roilabel runs MONAI Label models over a region of a slide or plain image
// and merges the returned outlines into a local ASAP annotation file.
//
// Usage:
//
//	roilabel infer --model segmentation --region 1000,2000,512,512 slide.svs
//	roilabel models
//
// See --help for all available options.
package main

func main() {
	Execute()
}
