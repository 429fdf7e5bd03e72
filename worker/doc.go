/*
Package worker runs polling loops over a consume.Source. Each cycle pulls one bounded
batch, decodes every delivery into an envelope, dispatches it on its type and
acknowledges it only after the handler succeeded. Errors are logged and never end the
loop; only context cancellation stops a Runner.
*/
package worker
