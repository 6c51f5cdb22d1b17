// Package placer moves staged uploads into their category/year directory.
//
// It classifies the staged file's base name, resolves the destination under
// the configured CW or SW root, refuses to create missing destinations (they
// are created once at startup), and renames the file into place, replacing
// any file of the same name. Cross-device renames fall back to a verified
// copy followed by removal of the staged file.
package placer
