// Package bundler implements the assembly pipeline that turns an application
// tree into a distributable directory and a macOS application bundle. The
// stages run strictly in order: analysis, payload archive, launcher assembly,
// directory collection and bundle assembly. Any failed stage aborts the whole
// build since an incomplete bundle is worse than none.
package bundler
