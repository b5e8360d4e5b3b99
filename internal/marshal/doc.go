/*
Package marshal projects host functions and classes into a VM context.

A projection is a VM function standing in for a *host.Function. Calling it
unmarshals the receiver and arguments with the caller's hook, invokes the host
function, and marshals the result back. When the host function is a class the
projection also works with `new`: the host constructor runs and the fields of
the instance it produces are marshalled onto the VM instance, which stays an
instance of the projection.

The marshal and unmarshal hooks decide how every other value crosses the
boundary, so the same package serves any embedding policy.
*/
package marshal
