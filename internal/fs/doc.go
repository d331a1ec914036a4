// Package fs abstracts the file operations behind atomic writes so tests can
// inject I/O failures.
//
// Production code uses Default (LocalFS). Tests wrap it in a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("entries", fs.Fault{FailAfterBytes: 1024})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// Operations take no context.Context: local file calls are not interruptible
// at the syscall level. Remote storage goes through blobstore instead.
package fs
