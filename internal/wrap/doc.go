/*
Package wrap tags values that already crossed the boundary so they are passed
by reference instead of being converted again.

On the host side a value is wrapped in a *Wrapped carrying the reserved key.
On the VM side an object is wrapped in a Proxy that answers the reserved
symbol with its target. Either wrapper can be stripped again with Unwrap or
UnwrapHandle, recovering the original identity.

Writes through a wrapper follow a SyncMode. "host" applies them to the host
value only, "vm" to the VM value only, and "both" to both sides. Host
wrappers default to "host" and VM wrappers to "vm". Promises and dates are
never wrapped.
*/
package wrap
