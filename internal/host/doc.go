/*
Package host models the host side of the bridge.

Host values are ordinary Go values plus a few reference types that carry
identity the way JS objects do:

  - *Object: ordered own properties keyed by string or *Symbol
  - *Function: a callable with a name, a declared length and own properties;
    created with NewClass it is also a constructor
  - *Promise: a settle-once eventual value
  - time.Time: dates

Identity is pointer identity, so two *Object values describe the same object
only when they are the same pointer.
*/
package host
