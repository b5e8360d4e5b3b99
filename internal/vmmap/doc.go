// Package vmmap maps host values to VM handles and back by identity.
package vmmap
