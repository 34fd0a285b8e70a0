// Package build writes the production artifacts into OutDir. Every file under
// Root is read through the assets site (so define substitution and plugin
// hooks apply exactly as in the dev server) and committed to disk with
// temp file + rename, leaving no partially written artifact behind.
package build
