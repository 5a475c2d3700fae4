// Package preview renders small PNG previews of image files so that MCP
// clients can see what an operation produced without reading the file.
//
// Decoding happens in-process with the imaging package; the magick package
// never depends on it. Decoded images are kept in a Cache keyed by path and
// revalidated against the file's size and modification time.
//
// # Formats
//
// PNG, JPEG, GIF, TIFF and BMP through imaging, and WebP through
// golang.org/x/image/webp. Formats only the external tools understand (PSD,
// HEIC, ...) cannot be previewed; Generate returns a decode error for them.
//
// # Output
//
// A Result carries the source dimensions, the preview dimensions, the mean
// colour and the base64 PNG data. Previews never upscale.
package preview
