// Package random implements random_get using crypto/rand.
package random
