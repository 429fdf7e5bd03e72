/*
Package gateway builds the canonical envelope for a publish request and hands it to one
or two destinations. Dual routes fan out concurrently and always collect both outcomes;
the per-destination results are folded into a single succeeded, partial or failed status.
*/
package gateway
