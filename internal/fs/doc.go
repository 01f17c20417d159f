// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [FileSystem]: the operations the storage backends perform on files and directories
//   - [LocalFS]: production implementation over the os package
//   - [FaultyFS]: test wrapper that injects errors by file name pattern
//
// Production code uses fs.Default. Tests inject a FaultyFS to check that
// load, flush and wipe failures surface as errors instead of silent corruption:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("status.dat", fs.Fault{FailOnSync: true})
package fs
