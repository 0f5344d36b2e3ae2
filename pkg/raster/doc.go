// Package raster holds the contract shared by the BMP and PSD decoders:
// the decoded RGBA8 Image, the size Limits checked before any pixel buffer
// is allocated, and the tagged Error every decoder returns.
package raster
