//go:build !unix

package stores

import "os"

//LockFile is a no-op where flock is unavailable
func LockFile(*os.File) error { return nil }
