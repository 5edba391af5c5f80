// Package namer generates the random name fragments used for IPC paths.
//
// Names only need to be hard to guess for a casual observer on the device,
// so math/rand is used rather than crypto/rand. Nothing is persisted: a
// restarted process opens its channels under fresh names.
package namer

import "math/rand"

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const (
	// DirNameLength is the length of a channel directory name.
	DirNameLength = 8

	// PrefixLength is the number of random characters after a file prefix letter.
	PrefixLength = 4
)

// Random returns prefix followed by length random lowercase alphanumerics.
func Random(prefix string, length int) string {
	if length <= 0 {
		return prefix
	}
	b := make([]byte, len(prefix)+length)
	copy(b, prefix)
	for i := len(prefix); i < len(b); i++ {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
